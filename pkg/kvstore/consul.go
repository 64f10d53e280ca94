package kvstore

// Consul backed infra.KVStore. Values are kept under an optional folder so
// several engines can share one cluster.

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fystack/jackpot-engine/pkg/common/enum"
	"github.com/fystack/jackpot-engine/pkg/infra"
	"github.com/hashicorp/consul/api"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyEmpty    = errors.New("key is empty")
)

// consul caps a transaction at 64 operations
const consulMaxTxnOps = 64

func checkKeyAndValue(k string, v any) error {
	if k == "" {
		return ErrKeyEmpty
	}
	if v == nil {
		return errors.New("the passed value is nil, which is not allowed")
	}
	return nil
}

type ConsulClient struct {
	kv     *api.KV
	txn    *api.Txn
	folder string
	codec  infra.Codec
}

func (c ConsulClient) GetName() string {
	return string(enum.KVStoreTypeConsul)
}

func (c ConsulClient) key(k string) string {
	if c.folder != "" {
		return c.folder + "/" + k
	}
	return k
}

func (c ConsulClient) Set(k string, v string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.kv.Put(&api.KVPair{Key: c.key(k), Value: []byte(v)}, nil)
	return err
}

func (c ConsulClient) Get(k string) (string, error) {
	if k == "" {
		return "", ErrKeyEmpty
	}
	pair, _, err := c.kv.Get(c.key(k), nil)
	if err != nil {
		return "", err
	}
	if pair == nil {
		return "", ErrKeyNotFound
	}
	return string(pair.Value), nil
}

func (c ConsulClient) SetAny(k string, v any) error {
	if err := checkKeyAndValue(k, v); err != nil {
		return err
	}
	data, err := c.codec.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.kv.Put(&api.KVPair{Key: c.key(k), Value: data}, nil)
	return err
}

// SetAnyBatch writes all entries in a single consul transaction.
func (c ConsulClient) SetAnyBatch(entries map[string]any) error {
	if len(entries) > consulMaxTxnOps {
		return fmt.Errorf("consul batch of %d exceeds %d operations", len(entries), consulMaxTxnOps)
	}
	ops := make(api.TxnOps, 0, len(entries))
	for k, v := range entries {
		if err := checkKeyAndValue(k, v); err != nil {
			return err
		}
		data, err := c.codec.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", k, err)
		}
		ops = append(ops, &api.TxnOp{KV: &api.KVTxnOp{Verb: api.KVSet, Key: c.key(k), Value: data}})
	}

	ok, resp, _, err := c.txn.Txn(ops, nil)
	if err != nil {
		return err
	}
	if !ok {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			msgs = append(msgs, e.What)
		}
		return fmt.Errorf("consul transaction rolled back: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// GetAny decodes the stored value into v. A missing key returns (false, nil).
func (c ConsulClient) GetAny(k string, v any) (bool, error) {
	if err := checkKeyAndValue(k, v); err != nil {
		return false, err
	}
	pair, _, err := c.kv.Get(c.key(k), nil)
	if err != nil {
		return false, err
	}
	if pair == nil {
		return false, nil
	}
	return true, c.codec.Unmarshal(pair.Value, v)
}

func (c ConsulClient) List(prefix string) ([]*infra.KVPair, error) {
	if prefix == "" {
		return nil, errors.New("prefix is empty")
	}
	pairs, _, err := c.kv.List(c.key(prefix), nil)
	if err != nil {
		return nil, err
	}

	result := make([]*infra.KVPair, len(pairs))
	for i, p := range pairs {
		key := p.Key
		if c.folder != "" {
			key = strings.TrimPrefix(key, c.folder+"/")
		}
		result[i] = &infra.KVPair{Key: key, Value: p.Value}
	}
	return result, nil
}

// Delete of a missing key is not an error.
func (c ConsulClient) Delete(k string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.kv.Delete(c.key(k), nil)
	return err
}

func (c ConsulClient) Close() error {
	return nil
}

type Options struct {
	// "http" by default
	Scheme string
	// "127.0.0.1:8500" by default
	Address string
	// Folder under which every key is stored
	Folder string
	// infra.JSON by default
	Codec infra.Codec

	Token    string
	HttpAuth *api.HttpBasicAuth
}

var DefaultConsulOptions = Options{
	Scheme:  "http",
	Address: "127.0.0.1:8500",
	Codec:   infra.JSON,
}

func NewConsulClient(options Options) (infra.KVStore, error) {
	if options.Scheme == "" {
		options.Scheme = DefaultConsulOptions.Scheme
	}
	if options.Address == "" {
		options.Address = DefaultConsulOptions.Address
	}
	if options.Codec == nil {
		options.Codec = DefaultConsulOptions.Codec
	}

	cfg := api.DefaultConfig()
	cfg.Scheme = options.Scheme
	cfg.Address = options.Address
	cfg.WaitTime = 10 * time.Second
	if options.Token != "" {
		cfg.Token = options.Token
	}
	if options.HttpAuth != nil && options.HttpAuth.Username != "" {
		cfg.HttpAuth = options.HttpAuth
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	return ConsulClient{
		kv:     client.KV(),
		txn:    client.Txn(),
		folder: options.Folder,
		codec:  options.Codec,
	}, nil
}

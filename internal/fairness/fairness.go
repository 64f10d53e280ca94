// Package fairness derives round draws from a commit-reveal scheme.
//
// When a round opens the engine commits to sha256(seed). Once bets are locked an
// unpredictable public value is fetched from a Beacon and the draw becomes
// HMAC-SHA256(seed, public|round) mapped to [0,1). Publishing the seed after
// settlement lets anyone recompute the draw with Verify.
package fairness

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/fystack/jackpot-engine/pkg/model"
)

const seedSize = 32

var (
	ErrCommitmentMismatch = errors.New("seed does not match committed hash")
	ErrDrawMismatch       = errors.New("draw does not match proof")
)

// Commitment is the secret half of a round. Seed must not leave the engine before settlement.
type Commitment struct {
	Round    uint64
	Seed     []byte
	SeedHash string
}

// Drawer produces the uniform value used by winner selection.
type Drawer interface {
	// Open is called when a round starts accepting bets.
	Open(round uint64) (*Commitment, error)
	// Draw returns u in [0,1). The proof is nil for drawers that cannot be verified.
	Draw(ctx context.Context, c *Commitment) (float64, *model.FairnessProof, error)
}

func NewCommitment(round uint64) (*Commitment, error) {
	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return &Commitment{Round: round, Seed: seed, SeedHash: HashSeed(seed)}, nil
}

func HashSeed(seed []byte) string {
	sum := sha256.Sum256(seed)
	return hex.EncodeToString(sum[:])
}

// DrawFrom maps the HMAC of public|round under seed to [0,1) using its top 53 bits,
// so the result is exactly representable and never reaches 1.
func DrawFrom(seed []byte, publicValue string, round uint64) float64 {
	mac := hmac.New(sha256.New, seed)
	mac.Write([]byte(publicValue + "|" + strconv.FormatUint(round, 10)))
	sum := mac.Sum(nil)
	v := binary.BigEndian.Uint64(sum[:8])
	return float64(v>>11) / float64(uint64(1)<<53)
}

// Verify recomputes a revealed proof.
func Verify(p model.FairnessProof) error {
	seed, err := hex.DecodeString(p.Seed)
	if err != nil {
		return fmt.Errorf("invalid seed encoding: %w", err)
	}
	if HashSeed(seed) != p.SeedHash {
		return ErrCommitmentMismatch
	}
	if DrawFrom(seed, p.PublicValue, p.RoundNumber) != p.Draw {
		return ErrDrawMismatch
	}
	return nil
}

type commitReveal struct {
	beacon Beacon
}

func NewCommitRevealDrawer(beacon Beacon) Drawer {
	if beacon == nil {
		beacon = RoundBeacon{}
	}
	return &commitReveal{beacon: beacon}
}

func (d *commitReveal) Open(round uint64) (*Commitment, error) {
	return NewCommitment(round)
}

func (d *commitReveal) Draw(ctx context.Context, c *Commitment) (float64, *model.FairnessProof, error) {
	if c == nil || len(c.Seed) == 0 {
		return 0, nil, errors.New("round has no commitment")
	}
	public, err := d.beacon.PublicValue(ctx, c.Round)
	if err != nil {
		return 0, nil, fmt.Errorf("beacon: %w", err)
	}
	u := DrawFrom(c.Seed, public, c.Round)
	return u, &model.FairnessProof{
		SeedHash:    c.SeedHash,
		Seed:        hex.EncodeToString(c.Seed),
		PublicValue: public,
		RoundNumber: c.Round,
		Draw:        u,
	}, nil
}

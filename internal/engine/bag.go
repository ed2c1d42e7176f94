package engine

import "math/rand"

// Bag is the 7-bag piece source: an infinite concatenation of independent
// uniform shuffles of the seven kinds, deterministic from a 64-bit seed.
//
// math/rand (not crypto/rand) is deliberate here: the contract requires a
// reproducible sequence given the same seed across platforms, which is
// exactly what a pinned PRNG + Fisher-Yates shuffle gives and crypto/rand
// cannot (it is intentionally non-reproducible).
type Bag struct {
	rng   *rand.Rand
	queue []Kind
}

// NewBag returns a Bag seeded with seed. The queue starts empty and fills
// lazily on first Preview/Next.
func NewBag(seed int64) *Bag {
	return &Bag{rng: rand.New(rand.NewSource(seed))}
}

// refillThreshold is the minimum queue length maintained so that a 3-piece
// preview is always available (spec §3: "next-three previews").
const refillThreshold = 3

func (b *Bag) ensure() {
	for len(b.queue) < refillThreshold {
		b.queue = append(b.queue, b.shuffledBatch()...)
	}
}

// shuffledBatch returns one Fisher-Yates shuffled permutation of the seven
// kinds, drawn from b.rng.
func (b *Bag) shuffledBatch() []Kind {
	batch := make([]Kind, len(AllKinds))
	copy(batch, AllKinds)
	for i := len(batch) - 1; i > 0; i-- {
		j := b.rng.Intn(i + 1)
		batch[i], batch[j] = batch[j], batch[i]
	}
	return batch
}

// Next pops and returns the next kind in the sequence.
func (b *Bag) Next() Kind {
	b.ensure()
	k := b.queue[0]
	b.queue = b.queue[1:]
	b.ensure()
	return k
}

// Preview returns the next n upcoming kinds without consuming them.
func (b *Bag) Preview(n int) []Kind {
	for len(b.queue) < n {
		b.queue = append(b.queue, b.shuffledBatch()...)
	}
	out := make([]Kind, n)
	copy(out, b.queue[:n])
	return out
}

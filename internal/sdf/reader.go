package sdf

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Block is an ordered set of KEY -> values pairs.
type Block struct {
	keys   []string
	values map[string][]string
}

func newBlock() *Block { return &Block{values: map[string][]string{}} }

func (b *Block) set(key string, vals []string) {
	if _, ok := b.values[key]; !ok {
		b.keys = append(b.keys, key)
	}
	b.values[key] = vals
}

// Has reports whether key was present in the block.
func (b *Block) Has(key string) bool {
	_, ok := b.values[key]
	return ok
}

// Fields returns the raw whitespace-separated values of key.
func (b *Block) Fields(key string) []string { return b.values[key] }

// Get returns the value of key with its fields joined by a single space.
func (b *Block) Get(key string) (string, bool) {
	v, ok := b.values[key]
	if !ok {
		return "", false
	}
	return strings.Join(v, " "), true
}

// Keys returns the keys in file order.
func (b *Block) Keys() []string { return append([]string(nil), b.keys...) }

func (b *Block) Len() int { return len(b.keys) }

// MarshalJSON collapses single-value keys to scalars.
func (b *Block) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(b.keys))
	for _, k := range b.keys {
		v := b.values[k]
		switch len(v) {
		case 0:
			m[k] = []string{}
		case 1:
			m[k] = v[0]
		default:
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// Description is the two-level key mapping of a description file: one
// session block and one or more observation blocks.
type Description struct {
	Session      *Block
	Observations []*Block
}

// MarshalJSON renders {SESSION: {...}, OBSERVATIONS: {OBSERVATION_1: {...}}}.
func (d *Description) MarshalJSON() ([]byte, error) {
	obs := make(map[string]*Block, len(d.Observations))
	for i, b := range d.Observations {
		obs[fmt.Sprintf("OBSERVATION_%d", i+1)] = b
	}
	return json.Marshal(struct {
		Session      *Block            `json:"SESSION"`
		Observations map[string]*Block `json:"OBSERVATIONS"`
	}{d.Session, obs})
}

// Reader turns description text into a Description.
type Reader interface {
	Read(r io.Reader) (*Description, error)
}

// HeuristicReader implements the implicit block boundary of the format:
// keys without "OBS" belong to the session, keys with it belong to the
// current observation, and a key repeated within an observation opens the
// next one.
type HeuristicReader struct{}

func (HeuristicReader) Read(r io.Reader) (*Description, error) {
	d := &Description{Session: newBlock(), Observations: []*Block{newBlock()}}
	cur := d.Observations[0]

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		f := strings.Fields(sc.Text())
		if len(f) == 0 {
			continue
		}
		key, vals := f[0], f[1:]
		if !strings.Contains(key, "OBS") {
			d.Session.set(key, vals)
			continue
		}
		if cur.Has(key) {
			cur = newBlock()
			d.Observations = append(d.Observations, cur)
		}
		cur.set(key, vals)
	}
	if err := sc.Err(); err != nil {
		return nil, &ParseError{Msg: "read description", Err: err}
	}
	return d, nil
}

// ReadFile reads a description file with the HeuristicReader.
func ReadFile(path string) (*Description, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Msg: "open description", Err: err}
	}
	defer f.Close()
	return HeuristicReader{}.Read(f)
}

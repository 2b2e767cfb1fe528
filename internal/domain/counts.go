package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Counts is a name→count mapping that remembers key insertion order. When
// decoded from JSON it keeps the order of the object's keys.
type Counts struct {
	keys   []string
	values map[string]int
}

// NewCounts builds Counts from a plain map. Keys listed in order come first (when
// present), remaining keys follow in lexical order.
func NewCounts(m map[string]int, order []string) Counts {
	var c Counts
	seen := make(map[string]bool, len(order))
	for _, k := range order {
		if v, ok := m[k]; ok {
			c.Set(k, v)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		c.Set(k, m[k])
	}
	return c
}

// Set assigns v to key, appending key to the order if it is new.
func (c *Counts) Set(key string, v int) {
	if c.values == nil {
		c.values = make(map[string]int)
	}
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = v
}

// Add increments key by delta.
func (c *Counts) Add(key string, delta int) {
	c.Set(key, c.Get(key)+delta)
}

// Get returns the count for key; missing keys count as zero.
func (c Counts) Get(key string) int { return c.values[key] }

// Len returns the number of keys.
func (c Counts) Len() int { return len(c.keys) }

// Keys returns the keys in insertion order.
func (c Counts) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Each calls fn for every key in insertion order.
func (c Counts) Each(fn func(key string, v int)) {
	for _, k := range c.keys {
		fn(k, c.values[k])
	}
}

func (c Counts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(c.values[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *Counts) UnmarshalJSON(b []byte) error {
	*c = Counts{}
	if string(bytes.TrimSpace(b)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode counts: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode counts: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode counts key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decode counts: expected string key, got %v", tok)
		}
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("decode count for %q: %w", key, err)
		}
		f, err := n.Float64()
		if err != nil {
			return fmt.Errorf("decode count for %q: %w", key, err)
		}
		c.Set(key, int(math.Round(f)))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode counts: %w", err)
	}
	return nil
}

// Package vocabulary maps object, relationship and attribute names to the
// integer class ids the scene graph model was trained with.
package vocabulary

import (
	"encoding/json"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Unknown is the name reported for any id that is not in the vocabulary.
// It is always bound to id 0.
const Unknown = "<unk>"

type Category int

const (
	Objects Category = iota
	Relationships
	Attributes
)

func (c Category) String() string {
	switch c {
	case Objects:
		return "objects"
	case Relationships:
		return "relationships"
	case Attributes:
		return "attributes"
	}
	return "unknown"
}

var ErrLoad = errors.New("vocabulary: malformed source")

type mapping struct {
	nameToID map[string]int
	idToName map[int]string
}

func newMapping() mapping {
	return mapping{
		nameToID: map[string]int{Unknown: 0},
		idToName: map[int]string{0: Unknown},
	}
}

// Vocabulary is immutable once loaded and safe for concurrent readers.
type Vocabulary struct {
	categories [3]mapping
}

// New returns a vocabulary that only knows <unk> in every category.
func New() *Vocabulary {
	v := &Vocabulary{}
	for i := range v.categories {
		v.categories[i] = newMapping()
	}
	return v
}

type document struct {
	Objects       *map[string]int `json:"objects"`
	Relationships *map[string]int `json:"relationships"`
	Attributes    *map[string]int `json:"attributes"`
}

func LoadFile(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "vocabulary: open %s", path)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a JSON document holding the three mappings "objects",
// "relationships" and "attributes", each from name to id.
func Load(r io.Reader) (*Vocabulary, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(ErrLoad, err.Error())
	}

	sources := [3]*map[string]int{doc.Objects, doc.Relationships, doc.Attributes}
	v := New()
	for i, src := range sources {
		cat := Category(i)
		if src == nil {
			return nil, errors.Wrapf(ErrLoad, "missing %q", cat.String())
		}
		m, err := build(cat, *src)
		if err != nil {
			return nil, err
		}
		v.categories[i] = m
	}
	return v, nil
}

func build(cat Category, src map[string]int) (mapping, error) {
	m := newMapping()

	// Walk names in a fixed order so duplicate-id errors are reproducible.
	names := make([]string, 0, len(src))
	for name := range src {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		id := src[name]
		if id < 0 {
			return m, errors.Wrapf(ErrLoad, "%s: negative id %d for %q", cat, id, name)
		}
		if id == 0 && name != Unknown {
			return m, errors.Wrapf(ErrLoad, "%s: id 0 is reserved for %s, got %q", cat, Unknown, name)
		}
		if name == Unknown && id != 0 {
			return m, errors.Wrapf(ErrLoad, "%s: %s must map to 0, got %d", cat, Unknown, id)
		}
		if prev, ok := m.idToName[id]; ok && prev != name {
			return m, errors.Wrapf(ErrLoad, "%s: id %d is shared by %q and %q", cat, id, prev, name)
		}
		m.nameToID[name] = id
		m.idToName[id] = name
	}
	return m, nil
}

// NameToID returns the id for name, or 0 when the name is not known.
func (v *Vocabulary) NameToID(cat Category, name string) int {
	return v.categories[cat].nameToID[name]
}

// IDToName returns the name for id, or Unknown.
func (v *Vocabulary) IDToName(cat Category, id int) string {
	if name, ok := v.categories[cat].idToName[id]; ok {
		return name
	}
	return Unknown
}

func (v *Vocabulary) Contains(cat Category, name string) bool {
	_, ok := v.categories[cat].nameToID[name]
	return ok
}

// Len is the number of entries in a category, <unk> included. The model
// heads are sized by it.
func (v *Vocabulary) Len(cat Category) int {
	return len(v.categories[cat].nameToID)
}

// Names lists the names of a category ordered by id.
func (v *Vocabulary) Names(cat Category) []string {
	m := v.categories[cat].idToName
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = m[id]
	}
	return names
}

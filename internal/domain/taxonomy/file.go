package taxonomy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spanmark/spanmark/pkg/errors"
)

// fileSchema is the on-disk shape of a types file. The training framework
// consumes this exact structure; field names must not change.
type fileSchema struct {
	Entities  []EntityType   `json:"entities"`
	Relations []RelationType `json:"relations"`
}

// Parse decodes a types file from its JSON bytes.
func Parse(data []byte) (*Taxonomy, error) {
	var f fileSchema
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTaxonomyMalformed,
			"types file is not valid JSON")
	}
	return New(f.Entities, f.Relations)
}

// Load reads and parses the types file at path.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTaxonomyMalformed,
			fmt.Sprintf("read types file %s", path))
	}
	t, err := Parse(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err),
			fmt.Sprintf("types file %s", path))
	}
	return t, nil
}

// Marshal serializes the taxonomy back to the types-file schema, preserving
// declaration order.
func (t *Taxonomy) Marshal() ([]byte, error) {
	f := fileSchema{
		Entities:  t.entities,
		Relations: t.relations,
	}
	if f.Entities == nil {
		f.Entities = []EntityType{}
	}
	if f.Relations == nil {
		f.Relations = []RelationType{}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "marshal types file")
	}
	return data, nil
}

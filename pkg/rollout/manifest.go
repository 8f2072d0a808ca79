package rollout

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

const labelArtifact = "train.binju.io/artifact"

type objectMeta struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

type secretDoc struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   objectMeta        `yaml:"metadata"`
	Type       string            `yaml:"type"`
	StringData map[string]string `yaml:"stringData"`
}

// secretName builds the in-cluster name of a credential. Parts are joined
// with dashes: sec-<art>-<secret>, acnt-<art>-<inst>-<account>, ref-<art>-<inst>-<ref>.
func secretName(prefix string, parts ...string) string {
	name := prefix
	for _, p := range parts {
		name += "-" + p
	}
	return name
}

// bundle accumulates Kubernetes Secret documents for one apply call
type bundle struct {
	artID string
	docs  []secretDoc
}

func (b *bundle) add(name string, data map[string]string) {
	b.docs = append(b.docs, secretDoc{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata: objectMeta{
			Name:   name,
			Labels: map[string]string{labelArtifact: b.artID},
		},
		Type:       "Opaque",
		StringData: data,
	})
}

func (b *bundle) empty() bool {
	return len(b.docs) == 0
}

// render emits the documents as one multi-document YAML stream, sorted by name
func (b *bundle) render() (string, error) {
	sort.SliceStable(b.docs, func(i, j int) bool {
		return b.docs[i].Metadata.Name < b.docs[j].Metadata.Name
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range b.docs {
		if err := enc.Encode(doc); err != nil {
			return "", fmt.Errorf("failed to render secret %s: %w", doc.Metadata.Name, err)
		}
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

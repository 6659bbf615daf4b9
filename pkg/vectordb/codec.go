package vectordb

import (
	"encoding/json"

	"github.com/nounverb/nounverb/pkg/graph"
)

// encodeNoun/decodeNoun and encodeVerb/decodeVerb are the façade's wire
// format for the storage backend's opaque nouns/<id> and verbs/<id> blobs.
// The backend itself never interprets these bytes (§4.7); only the façade
// does.

func encodeNoun(n *graph.Noun) ([]byte, error) {
	return json.Marshal(n)
}

func decodeNoun(data []byte) (*graph.Noun, error) {
	var n graph.Noun
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func encodeVerb(v *graph.Verb) ([]byte, error) {
	return json.Marshal(v)
}

func decodeVerb(data []byte) (*graph.Verb, error) {
	var v graph.Verb
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// encodeMetadata/decodeMetadata convert between the caller-facing
// map[string]interface{} and the json.RawMessage stored on graph.Noun/Verb.
func encodeMetadata(m map[string]interface{}) (json.RawMessage, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodeMetadata(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

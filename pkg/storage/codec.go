package storage

import "encoding/json"

func encodeChangeRecord(r ChangeRecord) []byte {
	data, _ := json.Marshal(r) // ChangeRecord is a plain struct of scalars and []byte; marshal never fails
	return data
}

func decodeChangeRecord(data []byte) (ChangeRecord, error) {
	var r ChangeRecord
	err := json.Unmarshal(data, &r)
	return r, err
}

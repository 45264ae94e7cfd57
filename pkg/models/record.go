package models

// Record is one externally sourced entity. Values is keyed by column name and
// holds int64, float64 or string values according to the dataset schema.
// Records are not modified after they are built.
type Record struct {
	Key    string
	Values map[string]interface{}
}

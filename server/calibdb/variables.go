package calibdb

// VariableKey is a persistent setting, stored in the 'variable' table
type VariableKey string

const (
	VarScale VariableKey = "Scale" // Scale constant produced by the most recent calibration
)

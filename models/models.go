package models

// All listet alle Tabellen für die Auto-Migration.
func All() []any {
	return []any{&Provenance{}, &Document{}, &Work{}, &Identifier{}, &AnalysisResult{}}
}

package config

import "sort"

// sortStrings sorts s in place, used by the DB-group discovery loops to
// guarantee deterministic id assignment order (see pgsource.SortedSchemas
// for the equivalent top-level map helper).
func sortStrings(s []string) {
	sort.Strings(s)
}

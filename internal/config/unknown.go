package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance bounds the edit distance of a "did you mean" hint.
const maxSuggestDistance = 3

// keySchema maps a table path to the keys it accepts, read from the toml
// tags of Config. Tables of a map type are keyed "name.*".
var keySchema = schemaOf(reflect.TypeFor[Config]())

func schemaOf(t reflect.Type) map[string][]string {
	schema := map[string][]string{"": tagNames(t)}

	for i := range t.NumField() {
		f := t.Field(i)

		name := tagName(f)
		if name == "" {
			continue
		}

		switch ft := f.Type; {
		case ft.Kind() == reflect.Struct:
			schema[name] = tagNames(ft)
		case ft.Kind() == reflect.Map && ft.Elem().Kind() == reflect.Struct:
			schema[name+".*"] = tagNames(ft.Elem())
		}
	}

	return schema
}

func tagName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
	if name == "-" {
		return ""
	}

	return name
}

// tagNames is sorted so ties between suggestions resolve the same way
// every time.
func tagNames(t reflect.Type) []string {
	var names []string

	for i := range t.NumField() {
		if name := tagName(t.Field(i)); name != "" {
			names = append(names, name)
		}
	}

	slices.Sort(names)

	return names
}

// checkUnknownKeys reports every key the decoder did not consume.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKey(key))
	}

	return errors.Join(errs...)
}

func unknownKey(key toml.Key) error {
	var table, field string

	switch {
	case len(key) == 1:
		field = key[0]
	case len(key) == 2 && keySchema[key[0]] != nil:
		table, field = key[0], key[1]
	case len(key) == 3 && keySchema[key[0]+".*"] != nil:
		table, field = key[0]+"."+key[1], key[2]
	default:
		return fmt.Errorf("unknown config key %q", key.String())
	}

	msg := fmt.Sprintf("unknown config key %q", field)
	if table != "" {
		msg += fmt.Sprintf(" in [%s]", table)
	}

	schemaKey := table
	if len(key) == 3 {
		schemaKey = key[0] + ".*"
	}

	if hint := suggest(field, keySchema[schemaKey]); hint != "" {
		msg += fmt.Sprintf(", did you mean %q?", hint)
	}

	return errors.New(msg)
}

// suggest returns the closest candidate within maxSuggestDistance, or "".
func suggest(field string, candidates []string) string {
	field = strings.ToLower(field)
	best, bestDist := "", maxSuggestDistance+1

	for _, c := range candidates {
		if d := editDistance(field, c); d < bestDist {
			best, bestDist = c, d
		}
	}

	return best
}

// editDistance is the Levenshtein distance over bytes; config keys are
// ASCII.
func editDistance(a, b string) int {
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i

		for j := 1; j <= len(b); j++ {
			sub := diag
			if a[i-1] != b[j-1] {
				sub++
			}

			diag = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, sub)
		}
	}

	return row[len(b)]
}

package lead

import (
	"reflect"
)

// Overlay copies every reported field of src over dst. A field src did not
// report never erases what dst already has. Fields tagged merge:"-" (price,
// notes, line items) are owned by the deduplication resolver and skipped.
func Overlay(dst *Fields, src Fields) {
	merge(dst, src, true)
}

// FillMissing copies reported fields of src only where dst has none.
func FillMissing(dst *Fields, src Fields) {
	merge(dst, src, false)
}

func merge(dst *Fields, src Fields, overwrite bool) {
	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src)
	t := dv.Type()

	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("merge") == "-" {
			continue
		}
		d, s := dv.Field(i), sv.Field(i)

		if s.Kind() == reflect.Map {
			mergeMap(d, s, overwrite)
			continue
		}
		if isAbsent(s) {
			continue
		}
		if overwrite || isAbsent(d) {
			d.Set(s)
		}
	}
}

func mergeMap(d, s reflect.Value, overwrite bool) {
	if s.Len() == 0 {
		return
	}
	if d.IsNil() {
		d.Set(reflect.MakeMapWithSize(s.Type(), s.Len()))
	}
	iter := s.MapRange()
	for iter.Next() {
		if isAbsent(iter.Value()) {
			continue
		}
		if !overwrite {
			if existing := d.MapIndex(iter.Key()); existing.IsValid() && !isAbsent(existing) {
				continue
			}
		}
		d.SetMapIndex(iter.Key(), iter.Value())
	}
}

func isAbsent(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return v.IsNil()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}

// Missing lists the json names of mergeable fields src reports that dst lacks.
func Missing(dst, src Fields) []string {
	var names []string
	dv, sv := reflect.ValueOf(dst), reflect.ValueOf(src)
	t := dv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Tag.Get("merge") == "-" {
			continue
		}
		if !isAbsent(sv.Field(i)) && isAbsent(dv.Field(i)) {
			names = append(names, jsonName(f))
		}
	}
	return names
}

// Changes reports whether Overlay(dst, src) would modify dst.
func Changes(dst, src Fields) bool {
	merged := dst.Clone()
	Overlay(&merged, src)
	return !reflect.DeepEqual(merged, dst)
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			return tag[:i]
		}
	}
	if tag == "" {
		return f.Name
	}
	return tag
}

// ApplyEnrichment is the fill-only write of a deferred enrichment: it never
// replaces a value, including resolver-owned price, notes and line items.
func ApplyEnrichment(dst *Fields, src Fields) {
	FillMissing(dst, src)
	if dst.Price == nil && src.Price != nil {
		dst.Price = src.Price
	}
	if dst.Notes == "" {
		dst.Notes = src.Notes
	}
	if len(dst.LineItems) == 0 {
		dst.LineItems = src.LineItems
	}
}

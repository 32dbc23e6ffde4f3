package cache

import (
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// OwnerlessSegment stands in for the owner of resources whose cached value
// does not depend on the caller.
const OwnerlessSegment = "_"

// KeyCodec builds deterministic cache keys of the form
// [namespace::]resource::owner::digest and the prefixes used to invalidate
// them.
type KeyCodec interface {
	Key(resource, ownerID string, params any) string
	Pattern(resource, ownerID string) string
}

var segmentEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

type defaultKeyCodec struct {
	namespace string
}

// NewKeyCodec returns the default codec. A non empty namespace is prepended
// to every key, which keeps several deployments apart on a shared remote tier.
func NewKeyCodec(namespace string) KeyCodec {
	return &defaultKeyCodec{namespace: segmentEscaper.Replace(namespace)}
}

// Key returns the cache key for resource, owner and params. Parameter maps
// and struct fields are canonicalised, so insertion order never changes the
// key. Params holding functions or channels panic.
func (c *defaultKeyCodec) Key(resource, ownerID string, params any) string {
	owner := ownerID
	if owner == "" {
		owner = OwnerlessSegment
	}
	canonical := canonicalValue(reflect.ValueOf(params))
	digest := fmt.Sprintf("%016x", xxhash.Sum64String(canonical))

	return c.prefix(resource) + segmentEscaper.Replace(owner) + KeySeparator + digest
}

// Pattern returns the prefix shared by every key of resource and owner. An
// empty owner yields the prefix of the whole resource across owners.
func (c *defaultKeyCodec) Pattern(resource, ownerID string) string {
	if ownerID == "" {
		return c.prefix(resource)
	}
	return c.prefix(resource) + segmentEscaper.Replace(ownerID) + KeySeparator
}

func (c *defaultKeyCodec) prefix(resource string) string {
	resource = segmentEscaper.Replace(resource)
	if c.namespace == "" {
		return resource + KeySeparator
	}
	return c.namespace + KeySeparator + resource + KeySeparator
}

var (
	timeType          = reflect.TypeOf(time.Time{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
)

func canonicalValue(rv reflect.Value) string {
	if !rv.IsValid() {
		return "nil"
	}

	rt := rv.Type()
	if rt == timeType {
		return "time:" + rv.Interface().(time.Time).UTC().Format(time.RFC3339Nano)
	}

	switch rt.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		panic(fmt.Sprintf("cache: key parameter of kind %s cannot be encoded", rt.Kind()))
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return canonicalValue(rv.Elem())
	}

	if rt.Implements(textMarshalerType) && rv.CanInterface() {
		text, err := rv.Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			panic(fmt.Sprintf("cache: key parameter %s: %v", rt, err))
		}
		return "text:" + string(text)
	}

	switch rt.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return canonicalSequence("slice", rv)
	case reflect.Array:
		return canonicalSequence("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return canonicalMap(rv)
	case reflect.Struct:
		return canonicalStruct(rv, rt)
	case reflect.String:
		return "string:" + rv.String()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("%s:%v", rt.Kind(), rv.Interface())
	}

	panic(fmt.Sprintf("cache: key parameter of kind %s cannot be encoded", rt.Kind()))
}

func canonicalSequence(kind string, rv reflect.Value) string {
	parts := make([]string, rv.Len())
	for i := range parts {
		parts[i] = canonicalValue(rv.Index(i))
	}
	return fmt.Sprintf("%s[%d]:{%s}", kind, len(parts), strings.Join(parts, ","))
}

func canonicalMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, canonicalValue(iter.Key())+"="+canonicalValue(iter.Value()))
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func canonicalStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		parts = append(parts, field.Name+":"+canonicalValue(rv.Field(i)))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

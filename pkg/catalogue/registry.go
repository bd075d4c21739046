// Copyright 2018-2024 CERN
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// In applying this license, CERN does not waive the privileges and immunities
// granted to it by virtue of its status as an Intergovernmental Organization
// or submit itself to any jurisdiction.

// Package catalogue lowers a parsed search-query tree (pkg/searchquery) into
// a backend query-string fragment, given a field registry and a requesting
// user identity.
package catalogue

import "github.com/cs3org/mangastore/pkg/searchquery"

// Family groups fields that lower the same way.
type Family int

const (
	FamilyFullText Family = iota
	FamilyStatus
	FamilyTypedTag
	FamilyUserRole
	FamilyNumericCmp
	FamilyTagMembership
	FamilyListMembership
	FamilyNextAvailable
	FamilyKind
)

// Field declares one recognized search field: its value kind (for
// validation) and the family that decides how it lowers.
type Field struct {
	Name   string
	Kind   searchquery.ItemKind
	Family Family
	// Column is the backend column/table expression this field lowers
	// against; its meaning is family-specific (e.g. the sex code for a
	// FamilyTypedTag field, the role name for FamilyUserRole).
	Column string
}

// Registry is the set of fields the compiler is allowed to reference.
type Registry struct {
	fields map[string]Field
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{fields: map[string]Field{}}
}

// Register adds or replaces a field definition.
func (r *Registry) Register(f Field) {
	r.fields[f.Name] = f
}

// Lookup returns the field definition for name, if registered.
func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.fields[name]
	return f, ok
}

// DefaultRegistry returns the catalogue's built-in field vocabulary:
// title/description full-text, kind, sex-typed tags (m/f/b/mf/fm/u/n), a
// generic tag, status, the user-linked role fields, a numeric chapter-count
// comparison, list membership and the next-available flag.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Field{Name: "title", Kind: searchquery.KindString, Family: FamilyFullText, Column: "title"})
	r.Register(Field{Name: "description", Kind: searchquery.KindString, Family: FamilyFullText, Column: "description"})
	r.Register(Field{Name: "kind", Kind: searchquery.KindString, Family: FamilyKind, Column: "kind"})
	r.Register(Field{Name: "tag", Kind: searchquery.KindString, Family: FamilyTagMembership, Column: "tag"})
	r.Register(Field{Name: "status", Kind: searchquery.KindInt, Family: FamilyStatus, Column: "status"})
	r.Register(Field{Name: "chapters", Kind: searchquery.KindCmpInt, Family: FamilyNumericCmp, Column: "chapter_count"})
	r.Register(Field{Name: "list", Kind: searchquery.KindString, Family: FamilyListMembership, Column: "list_name"})
	r.Register(Field{Name: "next-available", Kind: searchquery.KindBool, Family: FamilyNextAvailable, Column: "next_available"})

	for _, sex := range []string{"m", "f", "b", "mf", "fm", "u", "n"} {
		r.Register(Field{Name: sex, Kind: searchquery.KindString, Family: FamilyTypedTag, Column: sex})
	}
	for _, role := range []string{"uploader", "artist", "author", "publisher"} {
		r.Register(Field{Name: role, Kind: searchquery.KindString, Family: FamilyUserRole, Column: role})
	}
	return r
}

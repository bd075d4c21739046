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

package catalogue

import (
	"fmt"
	"strings"

	"github.com/cs3org/mangastore/pkg/errtypes"
	"github.com/cs3org/mangastore/pkg/searchquery"
)

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func cmpOperator(c searchquery.Comparator) string {
	switch c {
	case searchquery.CmpGt:
		return ">"
	case searchquery.CmpGte:
		return ">="
	case searchquery.CmpLt:
		return "<"
	case searchquery.CmpLte:
		return "<="
	default:
		return "="
	}
}

// valueLiteral renders an ItemValue as a query-fragment literal.
func valueLiteral(v searchquery.ItemValue) string {
	switch v.Kind {
	case searchquery.KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case searchquery.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case searchquery.KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case searchquery.KindCmpInt:
		return fmt.Sprintf("%d", v.Int)
	case searchquery.KindCmpFloat:
		return fmt.Sprintf("%g", v.Float)
	default:
		return quote(v.Str)
	}
}

// lowerField renders a predicate for a single field's value according to its
// family, given the requesting userID for the family that needs it (list
// membership).
func lowerField(f Field, v searchquery.ItemValue, userID string) (string, error) {
	switch f.Family {
	case FamilyFullText:
		return fmt.Sprintf("%s LIKE %s", f.Column, quote("%"+v.Str+"%")), nil

	case FamilyKind, FamilyTagMembership, FamilyUserRole:
		return fmt.Sprintf("%s = %s", f.Column, valueLiteral(v)), nil

	case FamilyTypedTag:
		return fmt.Sprintf("(tag_sex = %s AND tag_name = %s)", quote(f.Column), valueLiteral(v)), nil

	case FamilyStatus:
		return fmt.Sprintf("%s = %s", f.Column, valueLiteral(v)), nil

	case FamilyNumericCmp:
		if v.Kind != searchquery.KindCmpInt && v.Kind != searchquery.KindCmpFloat && v.Kind != searchquery.KindInt && v.Kind != searchquery.KindFloat {
			return "", errtypes.InvalidInput(fmt.Sprintf("field %q requires a numeric comparison value", f.Name))
		}
		op := "="
		if v.Kind == searchquery.KindCmpInt || v.Kind == searchquery.KindCmpFloat {
			op = cmpOperator(v.Cmp)
		}
		return fmt.Sprintf("%s %s %s", f.Column, op, valueLiteral(v)), nil

	case FamilyListMembership:
		return fmt.Sprintf(
			"id IN (SELECT manga_id FROM list_items WHERE list_name = %s AND user_id = %s)",
			quote(v.Str), quote(userID),
		), nil

	case FamilyNextAvailable:
		return fmt.Sprintf("%s = 1", f.Column), nil

	default:
		return "", errtypes.InvalidInput(fmt.Sprintf("unsupported field family for %q", f.Name))
	}
}

func lowerItem(it *searchquery.Item, userID string, reg *Registry) (string, error) {
	field, ok := reg.Lookup(it.Field)
	if !ok {
		return "", errtypes.InvalidInput("unknown search field: " + it.Field)
	}
	pred, err := lowerField(field, it.Value, userID)
	if err != nil {
		return "", err
	}
	if it.Negated {
		pred = "NOT (" + pred + ")"
	}
	return pred, nil
}

func lowerNode(n searchquery.Node, userID string, reg *Registry) (string, error) {
	switch t := n.(type) {
	case *searchquery.Item:
		return lowerItem(t, userID, reg)
	case *searchquery.Array:
		return lowerArray(t, userID, reg)
	default:
		return "", errtypes.InvalidInput("unrecognized query node")
	}
}

// lowerArray joins each sibling with the operator recorded on the
// *preceding* sibling's OrNext flag ("or_post" in the grammar): it overrides
// the join for that one conjunction only, not the whole array.
func lowerArray(a *searchquery.Array, userID string, reg *Registry) (string, error) {
	if len(a.Items) == 0 {
		return "1=1", nil
	}

	parts := make([]string, len(a.Items))
	for i, n := range a.Items {
		p, err := lowerNode(n, userID, reg)
		if err != nil {
			return "", err
		}
		parts[i] = p
	}

	var sb strings.Builder
	sb.WriteString(parts[0])
	for i := 1; i < len(parts); i++ {
		op := "AND"
		if a.Items[i-1].Meta().OrNext {
			op = "OR"
		}
		sb.WriteString(" ")
		sb.WriteString(op)
		sb.WriteString(" ")
		sb.WriteString(parts[i])
	}

	expr := sb.String()
	if len(parts) > 1 {
		expr = "(" + expr + ")"
	}
	if a.Negated {
		expr = "NOT " + expr
	}
	return expr, nil
}

// Lower renders tree into a backend query-string fragment against reg's
// field vocabulary, for the given requesting user.
func Lower(tree *searchquery.Array, userID string, reg *Registry) (string, error) {
	return lowerArray(tree, userID, reg)
}

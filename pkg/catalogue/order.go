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

	"github.com/cs3org/mangastore/pkg/errtypes"
)

// Order enumerates the sort orders the catalogue supports.
type Order int

const (
	OrderCreated Order = iota
	OrderAlphabetical
	OrderUpdated
	OrderLastRead
	OrderPopularity
	OrderRandom
	OrderStatus
	OrderChapterCount
)

var orderColumns = map[Order]string{
	OrderCreated:       "created_at",
	OrderAlphabetical:  "title",
	OrderUpdated:       "updated_at",
	OrderLastRead:      "last_read_at",
	OrderPopularity:    "popularity",
	OrderRandom:        "RANDOM()",
	OrderStatus:        "status",
	OrderChapterCount:  "chapter_count",
}

// Lower renders an ORDER BY clause. Desc is ignored for OrderRandom, which
// has no meaningful direction.
func (o Order) Lower(desc bool) (string, error) {
	col, ok := orderColumns[o]
	if !ok {
		return "", errtypes.InvalidInput("unknown order")
	}
	if o == OrderRandom {
		return "ORDER BY " + col, nil
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf("ORDER BY %s %s", col, dir), nil
}

// Page is a 1-indexed page request.
type Page struct {
	Limit int
	Page  int
}

// Lower renders the "LIMIT limit START (page-1)*limit" pagination clause.
func (p Page) Lower() (string, error) {
	if p.Limit <= 0 {
		return "", errtypes.InvalidInput("limit must be positive")
	}
	if p.Page <= 0 {
		return "", errtypes.InvalidInput("page must be positive")
	}
	start := (p.Page - 1) * p.Limit
	return fmt.Sprintf("LIMIT %d START %d", p.Limit, start), nil
}

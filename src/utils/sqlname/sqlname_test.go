//go:build unit

/*
Copyright (c) YugabyteDB, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package sqlname

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQualifiedName(t *testing.T) {
	tests := []struct {
		input    string
		expected ObjectName
	}{
		{"orders", ObjectName{"public", "orders"}},
		{"Sales.Orders", ObjectName{"sales", "orders"}},
		{`"Sales"."Orders"`, ObjectName{"Sales", "Orders"}},
		{`public."odd.name"`, ObjectName{"public", "odd.name"}},
		{`public."say ""hi"""`, ObjectName{"public", `say "hi"`}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			name, err := ParseQualifiedName(tt.input, "public")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestParseQualifiedNameInvalid(t *testing.T) {
	for _, input := range []string{`a.b.c`, `"unterminated`, `public.`, ``} {
		_, err := ParseQualifiedName(input, "public")
		assert.Error(t, err, input)
	}
}

func TestObjectNameForms(t *testing.T) {
	n := NewObjectName("public", "orders_id_seq")
	assert.Equal(t, "public.orders_id_seq", n.Qualified())
	assert.Equal(t, `"public"."orders_id_seq"`, n.Quoted())
	assert.Equal(t, "public.orders_id_seq", n.Unquoted())

	n = NewObjectName("public", "Orders")
	assert.Equal(t, `public."Orders"`, n.Qualified())
	assert.Equal(t, `public.1abc`, NewObjectName("public", "1abc").Unquoted())
	assert.Equal(t, `public."1abc"`, NewObjectName("public", "1abc").Qualified())
}

func TestObjectNameSorting(t *testing.T) {
	names := []ObjectName{
		{"sales", "a"},
		{"public", "orders"},
		{"public", "accounts"},
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Less(names[j]) })
	assert.Equal(t, []ObjectName{{"public", "accounts"}, {"public", "orders"}, {"sales", "a"}}, names)
}

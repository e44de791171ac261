// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package slug

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Tempora   Labs  ", "tempora-labs"},
		{"Café Über GmbH", "cafe-uber-gmbh"},
		{"100% Done!", "100-done"},
		{"--already--slugged--", "already-slugged"},
		{"ALLCAPS", "allcaps"},
		{"", ""},
		{"!!!", ""},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, From(test.input), "From(%q)", test.input)
	}
}

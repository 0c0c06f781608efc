package search

import "testing"

func TestClassify(t *testing.T) {
	cats := map[string]bool{"finance": true, "healthcare": true}

	cases := []struct {
		name string
		q    string
		want QueryClass
	}{
		{"empty string", "", ClassEmpty},
		{"whitespace only", "   ", ClassEmpty},
		{"quoted phrase", `"annual report"`, ClassPhrase},
		{"five or more tokens", "one two three four five", ClassPhrase},
		{"category token", "finance", ClassCategory},
		{"two capitalized tokens", "John Smith", ClassEntity},
		{"two tokens no category", "red apple", ClassShort},
		{"three generic tokens", "apple banana cherry", ClassGeneral},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Classify(tc.q, cats)
			if got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.q, got, tc.want)
			}
		})
	}
}

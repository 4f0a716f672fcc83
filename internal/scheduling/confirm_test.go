package scheduling

import "testing"

func TestParseConfirmation(t *testing.T) {
	tests := []struct {
		text string
		want Sentiment
	}{
		{"sim", SentimentAffirmative},
		{"Sim!", SentimentAffirmative},
		{"SIM, pode ser", SentimentAffirmative},
		{"pode ser", SentimentAffirmative},
		{"claro", SentimentAffirmative},
		{"fechado", SentimentAffirmative},
		{"não", SentimentNegative},
		{"nao", SentimentNegative},
		{"Não posso nesse dia", SentimentNegative},
		{"nao pode ser", SentimentNegative},
		{"remarcar por favor", SentimentNegative},
		{"outro dia seria melhor", SentimentNegative},
		{"eu acho que sim talvez", SentimentUnknown},
		{"simpatico o corretor", SentimentUnknown},
		{"sabado às 10", SentimentUnknown},
		{"quero ver outro imovel", SentimentUnknown},
		{"", SentimentUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ParseConfirmation(tt.text); got != tt.want {
				t.Errorf("ParseConfirmation(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  NÃO  ", "nao"},
		{"Amanhã às 10h", "amanha as 10h"},
		{"PODE   SER", "pode ser"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

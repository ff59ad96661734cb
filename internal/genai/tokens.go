package genai

import "context"

// CountTokens sums the token counts of texts.
func CountTokens(ctx context.Context, tok Tokenizer, texts ...string) (int, error) {
	total := 0
	for _, text := range texts {
		n, err := tok.Tokenize(ctx, text)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

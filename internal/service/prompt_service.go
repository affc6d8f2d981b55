package service

import (
	"fmt"
	"strings"

	"comerse-go/internal/model"
)

// ComposePrompt merges the tenant profile and retrieved passages into the
// grounding instruction for the generation provider. It is a pure function:
// identical inputs always produce the identical prompt, so composed prompts
// are reproducible in tests.
//
// The knowledge section is emitted only when chunks exist, clearly delimited
// so the model can tell grounded fact from general instruction. Chunks appear
// in retrieval-rank order.
func ComposePrompt(profile model.Profile, chunks []model.RetrievedChunk) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are an AI customer support assistant for %s. You specialize in helping customers with:\n\n", profile.Company)
	b.WriteString("1. Product information and recommendations\n")
	b.WriteString("2. Sizing and fit questions\n")
	b.WriteString("3. Shipping and delivery inquiries\n")
	b.WriteString("4. Return and exchange policies\n")
	b.WriteString("5. Order status and tracking\n")
	b.WriteString("6. Technical product specifications\n")
	b.WriteString("7. Care instructions and maintenance\n\n")

	b.WriteString("Company Information:\n")
	fmt.Fprintf(&b, "- Company: %s\n", profile.Company)
	fmt.Fprintf(&b, "- Industry: %s\n\n", profile.Industry)

	tone := profile.ToneOfVoice
	if tone == "" {
		tone = "friendly"
	}
	fmt.Fprintf(&b, "Be helpful, %s, and knowledgeable. ", tone)
	b.WriteString("Always try to provide specific product recommendations when appropriate. ")
	b.WriteString("If you don't have specific information about a product, acknowledge this and offer to help the customer contact a human agent for more details.\n\n")
	b.WriteString("Keep responses concise but informative. Use bullet points for lists when helpful.")

	if len(chunks) > 0 {
		b.WriteString("\n\nRelevant information from your knowledge base:\n")
		for i, chunk := range chunks {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(chunk.Content)
		}
	}

	return b.String()
}

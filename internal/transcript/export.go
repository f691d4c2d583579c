package transcript

import "strings"

// RenderGrouped folds assigned todos into the final plain-text export:
// one block per owner with a header line and a bullet per item. Owners
// appear in first-appearance order and items keep extraction order, so the
// output is byte-identical for identical input. A run with no todos still
// produces a newline-terminated file.
func RenderGrouped(todos []Todo) string {
	if len(todos) == 0 {
		return "\n"
	}

	var owners []string
	grouped := make(map[string][]Todo)
	for _, todo := range todos {
		owner := strings.TrimSpace(todo.Owner)
		if owner == "" {
			owner = UnknownSpeaker
		}
		if _, ok := grouped[owner]; !ok {
			owners = append(owners, owner)
		}
		grouped[owner] = append(grouped[owner], todo)
	}

	var b strings.Builder
	for i, owner := range owners {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(owner)
		b.WriteString("\n")
		for _, item := range grouped[owner] {
			b.WriteString("- ")
			b.WriteString(item.Text)
			if due := strings.TrimSpace(item.Due); due != "" {
				b.WriteString(" (due: ")
				b.WriteString(due)
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

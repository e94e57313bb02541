package dedup

import (
	"fmt"
	"strings"

	"leadintake/internal/lead"
)

const (
	premiumHeader   = "Premium Listing Applied:"
	ambiguousHeader = "Ambiguous Duplicate (review required):"
	noteSeparator   = "\n\n"
)

func money(v float64) string {
	return fmt.Sprintf("$%.2f", v)
}

// premiumNote is the price breakdown recorded whenever a lead carries an
// add-on line item.
func premiumNote(items []lead.LineItem) string {
	var base, premium float64
	hasAddon := false
	for _, li := range items {
		if li.Kind == lead.KindAddon {
			premium += li.PriceValue()
			hasAddon = true
			continue
		}
		base += li.PriceValue()
	}
	if !hasAddon {
		return ""
	}
	return premiumHeader +
		"\nBase Price: " + money(base) +
		"\nPremium Listing: " + money(premium) +
		"\nTotal Price: " + money(base+premium)
}

// ambiguousNote records a merge made under uncertainty. prior is the lead as
// it was before the incoming record; item is the incoming primary line item
// when it carried a price.
func ambiguousNote(prior lead.Fields, priorItems []lead.LineItem, incoming lead.Fields, item *lead.LineItem, total *float64) string {
	var b strings.Builder
	b.WriteString(ambiguousHeader)
	if item != nil {
		existingPrice := 0.0
		if p := lead.PriceTotal(priorItems); p != nil {
			existingPrice = *p
		}
		b.WriteString("\nExisting Price: " + money(existingPrice))
		b.WriteString("\nIncoming Price: " + money(item.PriceValue()))
	}
	if conflicts(prior.Phone, incoming.Phone) {
		b.WriteString("\nIncoming Phone: " + incoming.Phone)
	}
	if conflicts(strings.ToLower(prior.Email), strings.ToLower(incoming.Email)) {
		b.WriteString("\nIncoming Email: " + incoming.Email)
	}
	if total != nil {
		b.WriteString("\nTotal Price: " + money(*total))
	}
	return b.String()
}

// rebuildNotes replaces the premium block of notes in place, or appends it,
// then appends extra blocks. Blocks written by anything else are kept.
func rebuildNotes(notes, premium string, extra ...string) string {
	var blocks []string
	placed := false
	if notes != "" {
		for _, block := range strings.Split(notes, noteSeparator) {
			switch {
			case block == "":
				continue
			case strings.HasPrefix(block, premiumHeader):
				if premium != "" && !placed {
					blocks = append(blocks, premium)
					placed = true
				}
				continue
			}
			blocks = append(blocks, block)
		}
	}
	if premium != "" && !placed {
		blocks = append(blocks, premium)
	}
	for _, e := range extra {
		if e != "" {
			blocks = append(blocks, e)
		}
	}
	return strings.Join(blocks, noteSeparator)
}

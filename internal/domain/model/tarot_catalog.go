package model

var majorArcana = []string{
	"The Fool", "The Magician", "The High Priestess", "The Empress", "The Emperor",
	"The Hierophant", "The Lovers", "The Chariot", "Strength", "The Hermit",
	"Wheel of Fortune", "Justice", "The Hanged Man", "Death", "Temperance",
	"The Devil", "The Tower", "The Star", "The Moon", "The Sun",
	"Judgement", "The World",
}

var (
	minorSuits = []string{"Wands", "Cups", "Swords", "Pentacles"}
	minorRanks = []string{
		"Ace", "Two", "Three", "Four", "Five", "Six", "Seven",
		"Eight", "Nine", "Ten", "Page", "Knight", "Queen", "King",
	}
)

var catalog = buildCatalog()

func buildCatalog() []Card {
	cards := make([]Card, 0, len(majorArcana)+len(minorSuits)*len(minorRanks))
	for _, name := range majorArcana {
		cards = append(cards, Card{ID: len(cards), Name: name})
	}
	for _, suit := range minorSuits {
		for _, rank := range minorRanks {
			cards = append(cards, Card{ID: len(cards), Name: rank + " of " + suit})
		}
	}
	return cards
}

// TarotCatalog returns a copy of the full 78-card deck in catalog order.
func TarotCatalog() []Card {
	out := make([]Card, len(catalog))
	copy(out, catalog)
	return out
}

func CardByID(id int) (Card, bool) {
	if id < 0 || id >= len(catalog) {
		return Card{}, false
	}
	return catalog[id], true
}

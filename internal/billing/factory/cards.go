package factory

// CardType describes what the emulator knows about a test card number.
type CardType struct {
	Brand   string
	Funding string
	Country string
}

// Test card numbers accepted by token creation. Anything else is rejected
// the way the live API rejects an unknown number.
var cardTypes = map[string]CardType{
	"4242424242424242": {Brand: "Visa", Funding: "credit", Country: "US"},
	"4012888888881881": {Brand: "Visa", Funding: "credit", Country: "US"},
	"4000056655665556": {Brand: "Visa", Funding: "debit", Country: "US"},
	"5555555555554444": {Brand: "MasterCard", Funding: "credit", Country: "US"},
	"5200828282828210": {Brand: "MasterCard", Funding: "debit", Country: "US"},
	"5105105105105100": {Brand: "MasterCard", Funding: "prepaid", Country: "US"},
	"378282246310005":  {Brand: "American Express", Funding: "credit", Country: "US"},
	"371449635398431":  {Brand: "American Express", Funding: "credit", Country: "US"},
	"6011111111111117": {Brand: "Discover", Funding: "credit", Country: "US"},
	"3056930009020004": {Brand: "Diners Club", Funding: "credit", Country: "US"},
	"3566002020360505": {Brand: "JCB", Funding: "credit", Country: "US"},
}

// LookupCardType resolves a raw card number to its type.
func LookupCardType(number string) (CardType, bool) {
	ct, ok := cardTypes[number]
	return ct, ok
}

package extractor

import (
	"regexp"
	"sort"
	"strings"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// ufNames maps folded state names to UF codes.
var ufNames = map[string]string{
	"acre": "AC", "alagoas": "AL", "amapa": "AP", "amazonas": "AM",
	"bahia": "BA", "ceara": "CE", "distrito federal": "DF",
	"espirito santo": "ES", "goias": "GO", "maranhao": "MA",
	"mato grosso": "MT", "mato grosso do sul": "MS", "minas gerais": "MG",
	"para": "PA", "paraiba": "PB", "parana": "PR", "pernambuco": "PE",
	"piaui": "PI", "rio de janeiro": "RJ", "rio grande do norte": "RN",
	"rio grande do sul": "RS", "rondonia": "RO", "roraima": "RR",
	"santa catarina": "SC", "sao paulo": "SP", "sergipe": "SE",
	"tocantins": "TO",
}

var ufCodes = map[string]bool{
	"AC": true, "AL": true, "AP": true, "AM": true, "BA": true, "CE": true,
	"DF": true, "ES": true, "GO": true, "MA": true, "MT": true, "MS": true,
	"MG": true, "PA": true, "PB": true, "PR": true, "PE": true, "PI": true,
	"RJ": true, "RN": true, "RS": true, "RO": true, "RR": true, "SC": true,
	"SP": true, "SE": true, "TO": true,
}

// municipalities maps folded municipality names to (UF, display name).
// Capitals plus the largest municipalities by population; the gazetteer is
// intentionally static — it is matching vocabulary, not a geo database.
var municipalities = map[string]models.Location{
	"rio branco":     {UF: "AC", Municipality: "Rio Branco"},
	"maceio":         {UF: "AL", Municipality: "Maceió"},
	"macapa":         {UF: "AP", Municipality: "Macapá"},
	"manaus":         {UF: "AM", Municipality: "Manaus"},
	"salvador":       {UF: "BA", Municipality: "Salvador"},
	"feira de santana": {UF: "BA", Municipality: "Feira de Santana"},
	"fortaleza":      {UF: "CE", Municipality: "Fortaleza"},
	"caucaia":        {UF: "CE", Municipality: "Caucaia"},
	"brasilia":       {UF: "DF", Municipality: "Brasília"},
	"vitoria":        {UF: "ES", Municipality: "Vitória"},
	"vila velha":     {UF: "ES", Municipality: "Vila Velha"},
	"serra":          {UF: "ES", Municipality: "Serra"},
	"goiania":        {UF: "GO", Municipality: "Goiânia"},
	"aparecida de goiania": {UF: "GO", Municipality: "Aparecida de Goiânia"},
	"sao luis":       {UF: "MA", Municipality: "São Luís"},
	"cuiaba":         {UF: "MT", Municipality: "Cuiabá"},
	"varzea grande":  {UF: "MT", Municipality: "Várzea Grande"},
	"campo grande":   {UF: "MS", Municipality: "Campo Grande"},
	"belo horizonte": {UF: "MG", Municipality: "Belo Horizonte"},
	"uberlandia":     {UF: "MG", Municipality: "Uberlândia"},
	"contagem":       {UF: "MG", Municipality: "Contagem"},
	"juiz de fora":   {UF: "MG", Municipality: "Juiz de Fora"},
	"betim":          {UF: "MG", Municipality: "Betim"},
	"montes claros":  {UF: "MG", Municipality: "Montes Claros"},
	"belem":          {UF: "PA", Municipality: "Belém"},
	"ananindeua":     {UF: "PA", Municipality: "Ananindeua"},
	"joao pessoa":    {UF: "PB", Municipality: "João Pessoa"},
	"campina grande": {UF: "PB", Municipality: "Campina Grande"},
	"curitiba":       {UF: "PR", Municipality: "Curitiba"},
	"londrina":       {UF: "PR", Municipality: "Londrina"},
	"maringa":        {UF: "PR", Municipality: "Maringá"},
	"recife":         {UF: "PE", Municipality: "Recife"},
	"jaboatao dos guararapes": {UF: "PE", Municipality: "Jaboatão dos Guararapes"},
	"olinda":         {UF: "PE", Municipality: "Olinda"},
	"caruaru":        {UF: "PE", Municipality: "Caruaru"},
	"teresina":       {UF: "PI", Municipality: "Teresina"},
	"duque de caxias": {UF: "RJ", Municipality: "Duque de Caxias"},
	"sao goncalo":    {UF: "RJ", Municipality: "São Gonçalo"},
	"nova iguacu":    {UF: "RJ", Municipality: "Nova Iguaçu"},
	"niteroi":        {UF: "RJ", Municipality: "Niterói"},
	"natal":          {UF: "RN", Municipality: "Natal"},
	"porto alegre":   {UF: "RS", Municipality: "Porto Alegre"},
	"caxias do sul":  {UF: "RS", Municipality: "Caxias do Sul"},
	"pelotas":        {UF: "RS", Municipality: "Pelotas"},
	"canoas":         {UF: "RS", Municipality: "Canoas"},
	"porto velho":    {UF: "RO", Municipality: "Porto Velho"},
	"boa vista":      {UF: "RR", Municipality: "Boa Vista"},
	"florianopolis":  {UF: "SC", Municipality: "Florianópolis"},
	"joinville":      {UF: "SC", Municipality: "Joinville"},
	"blumenau":       {UF: "SC", Municipality: "Blumenau"},
	"guarulhos":      {UF: "SP", Municipality: "Guarulhos"},
	"campinas":       {UF: "SP", Municipality: "Campinas"},
	"sao bernardo do campo": {UF: "SP", Municipality: "São Bernardo do Campo"},
	"santo andre":    {UF: "SP", Municipality: "Santo André"},
	"osasco":         {UF: "SP", Municipality: "Osasco"},
	"ribeirao preto": {UF: "SP", Municipality: "Ribeirão Preto"},
	"sorocaba":       {UF: "SP", Municipality: "Sorocaba"},
	"sao jose dos campos": {UF: "SP", Municipality: "São José dos Campos"},
	"santos":         {UF: "SP", Municipality: "Santos"},
	"aracaju":        {UF: "SE", Municipality: "Aracaju"},
	"palmas":         {UF: "TO", Municipality: "Palmas"},
}

// Ambiguous names resolved by insertion order quirks: "rio de janeiro" and
// "sao paulo" are both state and capital. The state mapping wins when the
// query says "estado de ..."; otherwise the capital is assumed only when
// "cidade de" or "municipio de" precedes the name.
var cityStateHomonyms = map[string]models.Location{
	"rio de janeiro": {UF: "RJ", Municipality: "Rio de Janeiro"},
	"sao paulo":      {UF: "SP", Municipality: "São Paulo"},
}

var ufCodePattern = regexp.MustCompile(`\b[A-Z]{2}\b`)

// extractLocations matches the gazetteer over the folded text. UF codes are
// matched on the original text because they are only unambiguous in
// uppercase ("em MG" is a state, "se" is a conjunction).
func extractLocations(original, folded string) []models.Location {
	found := make(map[string]models.Location)

	for name, uf := range ufNames {
		if !containsPhrase(folded, name) {
			continue
		}
		if loc, homonym := cityStateHomonyms[name]; homonym &&
			(containsPhrase(folded, "cidade de "+name) || containsPhrase(folded, "municipio de "+name)) {
			found[loc.UF+"/"+loc.Municipality] = loc
			continue
		}
		found[uf] = models.Location{UF: uf}
	}

	for name, loc := range municipalities {
		if containsPhrase(folded, name) {
			found[loc.UF+"/"+loc.Municipality] = loc
		}
	}

	for _, code := range ufCodePattern.FindAllString(original, -1) {
		if ufCodes[code] {
			if _, taken := found[code]; !taken {
				found[code] = models.Location{UF: code}
			}
		}
	}

	out := make([]models.Location, 0, len(found))
	for _, loc := range found {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UF != out[j].UF {
			return out[i].UF < out[j].UF
		}
		return out[i].Municipality < out[j].Municipality
	})
	return out
}

// containsPhrase reports whether phrase occurs in text on word boundaries.
func containsPhrase(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || !isWordByte(text[start-1])
		afterOK := end == len(text) || !isWordByte(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

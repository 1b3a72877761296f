package provider

import (
    "strings"

    "github.com/Rhymond/go-money"
)

// minorUnits lists currency codes some exchanges quote in hundredths of the
// major unit (London pence, Johannesburg cents, Tel Aviv agorot).
var minorUnits = map[string]string{
    "GBp": "GBP",
    "GBX": "GBP",
    "ZAc": "ZAR",
    "ILA": "ILS",
}

// NormalizeCurrency returns the ISO 4217 code for code and the factor prices
// quoted in it must be multiplied by. Unknown codes yield "" and factor 1.
func NormalizeCurrency(code string) (string, float64) {
    code = strings.TrimSpace(code)
    if major, ok := minorUnits[code]; ok {
        return major, 0.01
    }
    up := strings.ToUpper(code)
    if money.GetCurrency(up) == nil {
        return "", 1
    }
    return up, 1
}

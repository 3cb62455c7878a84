package aggregator

import "stock-insight/models"

// MockProfile returns a fixed profile for contract testing without any
// upstream calls.
func MockProfile(symbol string) *models.StockProfile {
	symbol = NormalizeSymbol(symbol)
	marketCap := int64(2500000000000)
	peRatio := 25.4
	dividendYield := 0.024
	high52 := 180.95
	low52 := 125.20

	return &models.StockProfile{
		Symbol:           symbol,
		CurrentPrice:     150.25,
		CompanyName:      symbol + " Test Company Inc.",
		MarketCap:        &marketCap,
		PERatio:          &peRatio,
		DividendYield:    &dividendYield,
		Volume:           45678901,
		DayHigh:          152.30,
		DayLow:           148.90,
		FiftyTwoWeekHigh: &high52,
		FiftyTwoWeekLow:  &low52,
		Sector:           "Technology",
		Industry:         "Consumer Electronics",
		Summary:          "This is a test company for demonstration purposes.",
		News: []models.ProfileNewsItem{
			{
				Title:               symbol + " reaches new highs amid strong earnings",
				Link:                "https://example.com/test",
				Publisher:           "Test News Network",
				ProviderPublishTime: 1692460800,
			},
		},
		Recommendations: []models.Recommendation{
			{
				Firm:      "Test Investment Bank",
				ToGrade:   "Buy",
				FromGrade: "Hold",
				Action:    "up",
				Period:    "2024-01-15",
			},
		},
		PriceHistory: models.TimeSeries{
			Dates:  []string{"2024-01-01", "2024-02-01", "2024-03-01", "2024-04-01"},
			Prices: []float64{140.5, 145.2, 148.8, 150.25},
		},
		Change:        1.35,
		ChangePercent: "0.9066%",
		PreviousClose: 148.90,
		Open:          149.10,
	}
}

package validate

func nullable(typ string, extra map[string]any) map[string]any {
	m := map[string]any{"type": []string{typ, "null"}}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func invoiceFormatSchema() map[string]any {
	kvk := nullable("string", map[string]any{"pattern": `^\d{8}$`})
	amount := nullable("number", map[string]any{"minimum": 0})
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"invoice_date": nullable("string", map[string]any{"pattern": `^\d{1,2}-\d{1,2}-\d{4}$`}),
			"seller_kvk":   kvk,
			"buyer_kvk":    kvk,
			"seller_iban":  nullable("string", map[string]any{"pattern": `^[A-Z]{2}\d{2}[A-Z0-9]{11,30}$`}),
			"currency":     map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
			"total_amount": amount,
			"vat_amount":   amount,
			"vat_rate":     nullable("number", map[string]any{"minimum": 0, "maximum": 100}),
			"line_items": map[string]any{
				"type": []string{"array", "null"},
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"quantity":   map[string]any{"type": "integer", "minimum": 1},
						"unit_price": map[string]any{"type": "number", "minimum": 0},
						"total":      map[string]any{"type": "number", "minimum": 0},
					},
				},
			},
		},
	}
}

func emailFormatSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"recipient_emails": map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "string", "format": "email"},
			},
			"cc_emails": map[string]any{
				"type":  []string{"array", "null"},
				"items": map[string]any{"type": "string", "format": "email"},
			},
			"urgency_score":   map[string]any{"type": "number", "minimum": 0, "maximum": 1},
			"effort_estimate": map[string]any{"type": "integer", "minimum": 0},
		},
	}
}

package cel

// DetectorExpressionExamples are detector expressions known to compile;
// they double as documentation for batch.detectors in the config file.
var DetectorExpressionExamples = map[string]string{
	"header_present":   `"purchase_id" in headers`,
	"all_headers":      `["leadID", "utm_source"].all(h, h in headers)`,
	"filename_hint":    `filename.contains("smartfinancial")`,
	"row_value":        `"vendor" in row && row["vendor"].lowerAscii() == "quotewizard"`,
	"combined":         `"lead_id" in headers && filename.endsWith(".csv")`,
	"header_prefix":    `headers.exists(h, h.startsWith("qw_"))`,
	"row_source_match": `has(row.source) && row.source.matches("^(?i)everquote")`,
}

package model

import "time"

// TermScore is a row of a ranked statistics result: {term, tf, idf}.
type TermScore struct {
	Term string  `json:"term"`
	TF   float64 `json:"tf"`
	IDF  float64 `json:"idf"`
}

// HuffmanEncoding is the serializable output of the Huffman codec.
// CodeTable keys are single characters of the original content.
type HuffmanEncoding struct {
	Encoded   string            `json:"encoded"`
	CodeTable map[string]string `json:"code_table"`
}

// ProcessingMetrics summarizes document processing times in seconds.
// All pointer fields are nil until the first document has been processed.
type ProcessingMetrics struct {
	FilesProcessed        int64      `json:"files_processed"`
	MinTimeProcessed      *float64   `json:"min_time_processed"`
	AvgTimeProcessed      *float64   `json:"avg_time_processed"`
	MaxTimeProcessed      *float64   `json:"max_time_processed"`
	StdDevProcessingTime  *float64   `json:"std_dev_processing_time"`
	MedianProcessingTime  *float64   `json:"median_processing_time"`
	LatestFileProcessedAt *time.Time `json:"latest_file_processed_timestamp"`
}

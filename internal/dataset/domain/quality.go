package domain

// QualityReport summarizes missing values, 3σ outliers and duplicate rows of a dataset.
type QualityReport struct {
	TotalRows       int                    `json:"total_rows"`
	TotalColumns    int                    `json:"total_columns"`
	MissingValues   int                    `json:"missing_values"`
	MissingByColumn map[string]int         `json:"missing_by_column"`
	Outliers        []Outlier              `json:"outliers"`
	DuplicateRows   []int                  `json:"duplicate_rows"`
	DuplicateCount  int                    `json:"duplicate_count"`
	ColumnStats     map[string]ColumnStats `json:"column_stats"`
	Score           float64                `json:"score"`
}

// Outlier is a numeric cell more than three standard deviations from its column mean.
// Row is the zero-based data row index.
type Outlier struct {
	Column string  `json:"column"`
	Row    int     `json:"row"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

// ColumnStats are population statistics of a numeric column.
type ColumnStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

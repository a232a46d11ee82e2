// Package recommend derives sustainability recommendations from the
// emission distribution of one upload.
package recommend

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"carbontracker/internal/db"
)

// Category of a recommendation, as stored.
type Category string

const (
	CategoryServiceOptimization Category = "service_optimization"
	CategoryRegionMigration     Category = "region_migration"
	CategoryCostSaving          Category = "cost_saving"
	CategoryRightSizing         Category = "resource_right_sizing"
)

// Heuristics applied to a batch. Reduction factors are fixed estimates,
// not measured values.
var (
	serviceShareThreshold    = decimal.NewFromInt(20) // percent
	serviceReductionFactor   = decimal.RequireFromString("0.3")
	regionReductionFactor    = decimal.RequireFromString("0.5")
	bestPracticeThreshold    = decimal.NewFromInt(10)
	costSavingFactor         = decimal.RequireFromString("0.15")
	rightSizingFactor        = decimal.RequireFromString("0.1")
	topServiceCount          = 3
	lowCarbonTargetRegion    = "EU (Frankfurt)"
	highCarbonIntensityZones = []string{"US East (N. Virginia)", "Asia Pacific (Singapore)", "Middle East (Bahrain)"}
)

// Input is the part of a committed record the engine looks at.
type Input struct {
	ProductCode string
	Location    string
	Emissions   decimal.Decimal // market-based
}

// Recommendation is an unpersisted engine result.
type Recommendation struct {
	Category           Category
	Priority           Priority
	Title              string
	Description        string
	PotentialReduction decimal.Decimal
	ActionItems        []string
	RelatedService     string
	RelatedRegion      string
}

type total struct {
	name  string
	value decimal.Decimal
}

func sortedTotals(m map[string]decimal.Decimal) []total {
	out := make([]total, 0, len(m))
	for k, v := range m {
		out = append(out, total{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].value.Cmp(out[j].value); c != 0 {
			return c > 0
		}
		return out[i].name < out[j].name
	})
	return out
}

// IsHighCarbonRegion reports whether region names one of the known
// high-carbon-intensity regions.
func IsHighCarbonRegion(region string) bool {
	for _, zone := range highCarbonIntensityZones {
		if strings.Contains(region, zone) {
			return true
		}
	}
	return false
}

// Analyze computes the ranked recommendations for one batch. It is a pure
// function of the input distribution.
func Analyze(records []Input) []Recommendation {
	services := make(map[string]decimal.Decimal)
	regions := make(map[string]decimal.Decimal)
	grand := decimal.Zero
	for _, r := range records {
		services[r.ProductCode] = services[r.ProductCode].Add(r.Emissions)
		regions[r.Location] = regions[r.Location].Add(r.Emissions)
		grand = grand.Add(r.Emissions)
	}

	var recs []Recommendation

	if grand.IsPositive() {
		top := sortedTotals(services)
		if len(top) > topServiceCount {
			top = top[:topServiceCount]
		}
		for _, svc := range top {
			share := svc.value.Div(grand).Mul(decimal.NewFromInt(100))
			if !share.GreaterThan(serviceShareThreshold) {
				continue
			}
			recs = append(recs, Recommendation{
				Category: CategoryServiceOptimization,
				Priority: PriorityHigh,
				Title:    fmt.Sprintf("Optimize %s Usage", svc.name),
				Description: fmt.Sprintf("%s accounts for %s%% of your carbon footprint. Consider optimizing resource usage, implementing auto-scaling, or right-sizing instances.",
					svc.name, share.StringFixed(1)),
				PotentialReduction: svc.value.Mul(serviceReductionFactor),
				ActionItems: []string{
					"Review instance types and sizes",
					"Implement auto-scaling policies",
					"Schedule non-critical workloads during off-peak hours",
					"Consider reserved instances for predictable workloads",
				},
				RelatedService: svc.name,
			})
		}
	}

	// no share threshold here, unlike services
	for _, region := range sortedTotals(regions) {
		if !IsHighCarbonRegion(region.name) {
			continue
		}
		recs = append(recs, Recommendation{
			Category: CategoryRegionMigration,
			Priority: PriorityMedium,
			Title:    fmt.Sprintf("Consider Migrating from %s", region.name),
			Description: fmt.Sprintf("%s has a higher carbon intensity. Migrating to greener regions like %s could reduce emissions by up to 50%%.",
				region.name, lowCarbonTargetRegion),
			PotentialReduction: region.value.Mul(regionReductionFactor),
			ActionItems: []string{
				"Analyze workload latency requirements",
				"Evaluate data residency regulations",
				"Plan phased migration strategy",
				"Test performance in alternative regions",
			},
			RelatedRegion: region.name,
		})
	}

	if grand.GreaterThan(bestPracticeThreshold) {
		recs = append(recs,
			Recommendation{
				Category:           CategoryCostSaving,
				Priority:           PriorityMedium,
				Title:              "Implement AWS Compute Optimizer",
				Description:        "AWS Compute Optimizer provides recommendations for optimal AWS resource configurations, which can reduce both costs and carbon emissions.",
				PotentialReduction: grand.Mul(costSavingFactor),
				ActionItems: []string{
					"Enable AWS Compute Optimizer",
					"Review EC2 instance recommendations",
					"Implement Lambda memory optimization",
					"Consider Graviton-based instances for better efficiency",
				},
			},
			Recommendation{
				Category:           CategoryRightSizing,
				Priority:           PriorityHigh,
				Title:              "Right-Size Storage Resources",
				Description:        "Optimize EBS volumes and S3 storage classes to reduce unnecessary storage and associated emissions.",
				PotentialReduction: grand.Mul(rightSizingFactor),
				ActionItems: []string{
					"Identify and delete unused EBS volumes",
					"Implement S3 Intelligent-Tiering",
					"Set lifecycle policies for older data",
					"Use S3 Glacier for archival data",
				},
			},
		)
	}

	Sort(recs)
	return recs
}

// Engine persists Analyze results for a user.
type Engine struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger, now: time.Now}
}

// Generate analyzes records and stores the result insert-or-ignore. It
// returns how many new recommendations were stored.
func (e *Engine) Generate(tx *gorm.DB, userID string, records []Input) (int64, error) {
	recs := Analyze(records)
	if len(recs) == 0 {
		return 0, nil
	}

	generatedAt := e.now().UTC()
	rows := make([]db.Recommendation, 0, len(recs))
	for _, r := range recs {
		rows = append(rows, db.Recommendation{
			UserID:                userID,
			Category:              string(r.Category),
			Priority:              r.Priority.String(),
			Title:                 r.Title,
			Description:           r.Description,
			PotentialCO2Reduction: r.PotentialReduction.InexactFloat64(),
			ActionItems:           r.ActionItems,
			RelatedService:        r.RelatedService,
			RelatedRegion:         r.RelatedRegion,
			Status:                db.RecommendationActive,
			GeneratedAt:           generatedAt,
		})
	}

	inserted, err := db.InsertRecommendations(tx, rows)
	if err != nil {
		return 0, fmt.Errorf("store recommendations: %w", err)
	}
	e.logger.Debug("recommendations generated",
		zap.String("user_id", userID),
		zap.Int("candidates", len(rows)),
		zap.Int64("inserted", inserted))
	return inserted, nil
}

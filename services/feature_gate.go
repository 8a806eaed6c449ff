package services

import (
	"fmt"

	"cms-publisher/models"
)

type Feature string

const (
	FeatureMultiPlatformPublish Feature = "multi_platform_publish"
	FeatureBulkPublish          Feature = "bulk_publish"
	FeatureScheduledPublish     Feature = "scheduled_publish"
	FeaturePostUpdates          Feature = "post_updates"
)

type Limit string

const (
	LimitConnectedPlatforms Limit = "connected_platforms"
	LimitMonthlyPublishes   Limit = "monthly_publishes"
)

// Unlimited marks a limit that never triggers.
const Unlimited int64 = -1

type planRules struct {
	features map[Feature]bool
	limits   map[Limit]int64
}

var planTable = map[models.SubscriptionPlan]planRules{
	models.PlanFree: {
		features: map[Feature]bool{},
		limits: map[Limit]int64{
			LimitConnectedPlatforms: 2,
			LimitMonthlyPublishes:   10,
		},
	},
	models.PlanPro: {
		features: map[Feature]bool{
			FeatureMultiPlatformPublish: true,
			FeatureScheduledPublish:     true,
			FeaturePostUpdates:          true,
		},
		limits: map[Limit]int64{
			LimitConnectedPlatforms: 5,
			LimitMonthlyPublishes:   100,
		},
	},
	models.PlanBusiness: {
		features: map[Feature]bool{
			FeatureMultiPlatformPublish: true,
			FeatureBulkPublish:          true,
			FeatureScheduledPublish:     true,
			FeaturePostUpdates:          true,
		},
		limits: map[Limit]int64{
			LimitConnectedPlatforms: Unlimited,
			LimitMonthlyPublishes:   Unlimited,
		},
	},
}

// FeatureGate answers plan entitlement questions from a static table.
type FeatureGate interface {
	CanAccessFeature(plan models.SubscriptionPlan, feature Feature) bool
	HasReachedLimit(plan models.SubscriptionPlan, limit Limit, usage int64) bool
	LimitFor(plan models.SubscriptionPlan, limit Limit) int64
	// RequireFeature returns ErrFeatureLocked when the plan lacks the feature.
	RequireFeature(plan models.SubscriptionPlan, feature Feature) error
	// RequireBelowLimit returns ErrPlanLimitReached once usage hits the limit.
	RequireBelowLimit(plan models.SubscriptionPlan, limit Limit, usage int64) error
}

type featureGate struct{}

func NewFeatureGate() FeatureGate {
	return featureGate{}
}

// rules falls back to FREE for unknown plans.
func rules(plan models.SubscriptionPlan) planRules {
	if r, ok := planTable[plan]; ok {
		return r
	}
	return planTable[models.PlanFree]
}

func (featureGate) CanAccessFeature(plan models.SubscriptionPlan, feature Feature) bool {
	return rules(plan).features[feature]
}

func (featureGate) LimitFor(plan models.SubscriptionPlan, limit Limit) int64 {
	value, ok := rules(plan).limits[limit]
	if !ok {
		return 0
	}
	return value
}

func (g featureGate) HasReachedLimit(plan models.SubscriptionPlan, limit Limit, usage int64) bool {
	ceiling := g.LimitFor(plan, limit)
	if ceiling == Unlimited {
		return false
	}
	return usage >= ceiling
}

func (g featureGate) RequireFeature(plan models.SubscriptionPlan, feature Feature) error {
	if !g.CanAccessFeature(plan, feature) {
		return fmt.Errorf("%w: %s", ErrFeatureLocked, feature)
	}
	return nil
}

func (g featureGate) RequireBelowLimit(plan models.SubscriptionPlan, limit Limit, usage int64) error {
	if g.HasReachedLimit(plan, limit, usage) {
		return fmt.Errorf("%w: %s (%d)", ErrPlanLimitReached, limit, g.LimitFor(plan, limit))
	}
	return nil
}

package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscriber_WantsAlert(t *testing.T) {
	target := 50.0
	anyDrop := &Subscriber{Subscription: Subscription{NotifyOnAnyDrop: true}, EmailNotifications: true}
	byTarget := &Subscriber{Subscription: Subscription{TargetPrice: &target}, EmailNotifications: true}
	muted := &Subscriber{Subscription: Subscription{NotifyOnAnyDrop: true, TargetPrice: &target}}
	neither := &Subscriber{EmailNotifications: true}

	require.True(t, anyDrop.WantsAlert(55))
	require.False(t, byTarget.WantsAlert(55))
	require.True(t, byTarget.WantsAlert(50))
	require.True(t, byTarget.WantsAlert(45))
	require.False(t, muted.WantsAlert(1))
	require.False(t, neither.WantsAlert(1))
}

func TestPlan_ProductLimit(t *testing.T) {
	require.Equal(t, 5, PlanFree.ProductLimit())
	require.Equal(t, 999, PlanPro.ProductLimit())
	require.Equal(t, 999, PlanUltra.ProductLimit())
	require.Equal(t, 999, PlanMega.ProductLimit())
	require.Equal(t, 5, Plan("enterprise").ProductLimit())
	require.False(t, Plan("enterprise").Valid())
	require.True(t, PlanMega.Valid())
}

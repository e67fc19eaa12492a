package model_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/unclebandit/mailing-service/internal/model"
)

func TestMailingValidWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, (&model.Mailing{StartTime: now, EndTime: now}).ValidWindow())
	assert.True(t, (&model.Mailing{StartTime: now, EndTime: now.Add(time.Hour)}).ValidWindow())
	assert.False(t, (&model.Mailing{StartTime: now.Add(time.Minute), EndTime: now}).ValidWindow())
}

func TestMailingSignificantlyDiffers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := model.Mailing{
		StartTime:          now,
		EndTime:            now.Add(time.Hour),
		MessageText:        "hello",
		MobileOperatorCode: "916",
		Tag:                "vip",
	}

	textOnly := base
	textOnly.MessageText = "bye"
	assert.False(t, base.SignificantlyDiffers(&textOnly))

	sameInstantOtherZone := base
	sameInstantOtherZone.StartTime = now.In(time.FixedZone("MSK", 3*3600))
	assert.False(t, base.SignificantlyDiffers(&sameInstantOtherZone))

	for name, mutate := range map[string]func(m *model.Mailing){
		"start":    func(m *model.Mailing) { m.StartTime = m.StartTime.Add(time.Second) },
		"end":      func(m *model.Mailing) { m.EndTime = m.EndTime.Add(time.Second) },
		"operator": func(m *model.Mailing) { m.MobileOperatorCode = "903" },
		"tag":      func(m *model.Mailing) { m.Tag = "new" },
	} {
		changed := base
		mutate(&changed)
		assert.True(t, base.SignificantlyDiffers(&changed), name)
	}
}

// SPDX-FileCopyrightText: 2020 Jecoz
//
// SPDX-License-Identifier: MIT

package api

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys, which double as the English text.
const (
	msgTitle        = "Redirection amounts over time"
	msgAppliedLabel = "Redirection Applied to\nUser (degrees)"
	msgTimeLabel    = "Time from start (seconds)"
	msgRateLabel    = "Redirection per Second (degrees/s)"
	msgSource       = "Redirection source"
	msgOverTime     = "Over time rotation"
	msgRotational   = "Rotational"
	msgCurvature    = "Curvature"
)

var supported = []language.Tag{language.English, language.French}

var matcher = language.NewMatcher(supported)

var labelCatalog = func() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for _, k := range []string{
		msgTitle, msgAppliedLabel, msgTimeLabel, msgRateLabel,
		msgSource, msgOverTime, msgRotational, msgCurvature,
	} {
		b.SetString(language.English, k, k)
	}
	b.SetString(language.French, msgTitle, "Quantités de redirection au cours du temps")
	b.SetString(language.French, msgAppliedLabel, "Redirection appliquée à\nl'utilisateur (degrés)")
	b.SetString(language.French, msgTimeLabel, "Temps depuis le début (secondes)")
	b.SetString(language.French, msgRateLabel, "Redirection par seconde (degrés/s)")
	b.SetString(language.French, msgSource, "Source de redirection")
	b.SetString(language.French, msgOverTime, "Rotation au cours du temps")
	b.SetString(language.French, msgRotational, "Rotationnelle")
	b.SetString(language.French, msgCurvature, "Courbure")
	return b
}()

// Labels holds the chart texts in one language.
type Labels struct {
	Lang         language.Tag
	Title        string
	AppliedLabel string
	TimeLabel    string
	RateLabel    string
	Source       string
	Components   [3]string
}

// MatchLanguage picks a supported language. An explicit lang, as given in
// a query string or on the command line, wins over the Accept-Language
// header. English is the fallback.
func MatchLanguage(lang, acceptLanguage string) language.Tag {
	var tags []language.Tag
	if lang != "" {
		if t, err := language.Parse(lang); err == nil {
			tags = append(tags, t)
		}
	}
	if acceptLanguage != "" {
		if ts, _, err := language.ParseAcceptLanguage(acceptLanguage); err == nil {
			tags = append(tags, ts...)
		}
	}
	if len(tags) == 0 {
		return language.English
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// LabelsFor returns the labels in the best supported match for tags.
func LabelsFor(tags ...language.Tag) Labels {
	tag := language.English
	if len(tags) > 0 {
		if _, idx, conf := matcher.Match(tags...); conf != language.No {
			tag = supported[idx]
		}
	}
	p := message.NewPrinter(tag, message.Catalog(labelCatalog))
	return Labels{
		Lang:         tag,
		Title:        p.Sprintf(msgTitle),
		AppliedLabel: p.Sprintf(msgAppliedLabel),
		TimeLabel:    p.Sprintf(msgTimeLabel),
		RateLabel:    p.Sprintf(msgRateLabel),
		Source:       p.Sprintf(msgSource),
		Components: [3]string{
			p.Sprintf(msgOverTime),
			p.Sprintf(msgRotational),
			p.Sprintf(msgCurvature),
		},
	}
}

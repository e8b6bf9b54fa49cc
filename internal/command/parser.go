// Package command turns chat text into a structured model.Intent.
//
// Grammar, per leading keyword:
//
//	deploy NAME [for Nh | in REGION | on INSTANCE | vX.Y | with N nodes]...
//	renew NAME [for Nh]...
//	expire NAME | teardown NAME | access NAME
//	list | info | check | help
//
// Parsing is lenient: the op is returned even when its arguments do not
// match, and trailing words are ignored.
package command

import (
	"regexp"
	"strings"

	"github.com/edvin/kubelease/internal/model"
)

var (
	clusterNameSpec = regexp.MustCompile(`^[a-z][a-z0-9_-]+$`)
	hourSpec        = regexp.MustCompile(`^\d+h$`)
	regionSpec      = regexp.MustCompile(`^..-.+$`)
	instanceSpec    = regexp.MustCompile(`^g\d-.+-\d$`)
	versionSpec     = regexp.MustCompile(`^v\d+\.\d+$`)
	sizeSpec        = regexp.MustCompile(`^\d+$`)

	mentionSpec = regexp.MustCompile(`\s*<@.*?>\s*`)
)

// matcher consumes a prefix of words, recording captures in the intent. It
// reports false, leaving words untouched, when it does not match.
type matcher func(words []string, in *model.Intent) ([]string, bool)

func keyword(k string) matcher {
	return func(words []string, in *model.Intent) ([]string, bool) {
		if len(words) > 0 && words[0] == k {
			return words[1:], true
		}
		return words, false
	}
}

func capture(re *regexp.Regexp, set func(in *model.Intent, v string)) matcher {
	return func(words []string, in *model.Intent) ([]string, bool) {
		if len(words) > 0 && re.MatchString(words[0]) {
			set(in, words[0])
			return words[1:], true
		}
		return words, false
	}
}

// all matches each matcher in sequence. Captures are only kept when the
// whole sequence matches.
func all(ms ...matcher) matcher {
	return func(words []string, in *model.Intent) ([]string, bool) {
		scratch := *in
		rest := words
		for _, m := range ms {
			var ok bool
			if rest, ok = m(rest, &scratch); !ok {
				return words, false
			}
		}
		*in = scratch
		return rest, true
	}
}

// repeat matches any of the alternatives zero or more times.
func repeat(alternatives ...matcher) matcher {
	return func(words []string, in *model.Intent) ([]string, bool) {
		for {
			matched := false
			for _, m := range alternatives {
				if rest, ok := m(words, in); ok && len(rest) < len(words) {
					words = rest
					matched = true
					break
				}
			}
			if !matched {
				return words, true
			}
		}
	}
}

var (
	clusterName = capture(clusterNameSpec, func(in *model.Intent, v string) { in.Cluster = v })
	life        = capture(hourSpec, func(in *model.Intent, v string) { in.Life = v })
	region      = capture(regionSpec, func(in *model.Intent, v string) { in.Region = v })
	instance    = capture(instanceSpec, func(in *model.Intent, v string) { in.Instance = v })
	version     = capture(versionSpec, func(in *model.Intent, v string) { in.Version = v })
	size        = capture(sizeSpec, func(in *model.Intent, v string) { in.Size = v })
)

var grammar = map[model.Op]matcher{
	model.OpList:     all(),
	model.OpInfo:     all(),
	model.OpCheck:    all(),
	model.OpHelp:     all(),
	model.OpExpire:   clusterName,
	model.OpTeardown: clusterName,
	model.OpAccess:   clusterName,
	model.OpRenew: all(
		clusterName,
		repeat(all(keyword("for"), life)),
	),
	model.OpDeploy: all(
		clusterName,
		repeat(
			all(keyword("for"), life),
			all(keyword("in"), region),
			all(keyword("on"), instance),
			version,
			all(keyword("with"), size, keyword("nodes")),
		),
	),
}

// StripMentions removes chat user mentions such as <@U024BE7LH>.
func StripMentions(text string) string {
	return strings.Join(strings.Fields(mentionSpec.ReplaceAllString(text, " ")), " ")
}

// Parse reads one chat message. It reports false when the first word is not
// a known command.
func Parse(text string) (model.Intent, bool) {
	words := strings.Fields(StripMentions(text))
	if len(words) == 0 {
		return model.Intent{}, false
	}

	op := model.Op(strings.ToLower(words[0]))
	m, ok := grammar[op]
	if !ok {
		return model.Intent{}, false
	}

	in := model.Intent{Op: op}
	m(words[1:], &in)
	return in, true
}

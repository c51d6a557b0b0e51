package techniques

import "github.com/dshills/modality-router/pkg/types"

var defaults = map[types.Modality][]types.Technique{
	types.ModalityCBT: {
		{
			Name:        "Thought Record",
			Description: "Write down the situation, the automatic thought and the evidence for and against it, then form a more balanced alternative thought.",
			Modality:    types.ModalityCBT,
		},
		{
			Name:        "Behavioral Activation",
			Description: "Schedule small, meaningful activities each day and note how your mood changes after each one.",
			Modality:    types.ModalityCBT,
		},
	},
	types.ModalityDBT: {
		{
			Name:        "TIPP",
			Description: "Change body chemistry fast when emotion is overwhelming: cold water on the face, brief intense exercise, paced breathing and paired muscle relaxation.",
			Modality:    types.ModalityDBT,
		},
		{
			Name:        "Wise Mind",
			Description: "Pause before acting and look for the point where emotion mind and reasonable mind overlap.",
			Modality:    types.ModalityDBT,
		},
	},
}

var therapies = map[types.Modality]types.TherapyInfo{
	types.ModalityCBT: {
		Name:        "Cognitive Behavioral Therapy",
		Description: "A structured, present-focused therapy that identifies unhelpful thoughts and behaviours and replaces them with more balanced ones.",
		CorePrinciples: []string{
			"Thoughts, feelings and behaviours influence each other",
			"Unhelpful thinking patterns can be identified and tested",
			"Changing behaviour changes mood",
			"Skills are practised between sessions",
		},
		BestFor: []string{
			"Depression",
			"Generalized anxiety and worry",
			"Panic and phobias",
			"Low self-esteem",
		},
	},
	types.ModalityDBT: {
		Name:        "Dialectical Behavior Therapy",
		Description: "A skills-based therapy that balances acceptance and change to help people manage intense emotions and relationships.",
		CorePrinciples: []string{
			"Mindfulness",
			"Distress tolerance",
			"Emotion regulation",
			"Interpersonal effectiveness",
		},
		BestFor: []string{
			"Intense or rapidly shifting emotions",
			"Self-harm and suicidal urges",
			"Impulsive behaviour",
			"Unstable relationships",
		},
	},
}

// Defaults returns the built-in techniques for a modality
func Defaults(m types.Modality) []types.Technique {
	d := defaults[m]
	out := make([]types.Technique, len(d))
	copy(out, d)
	return out
}

// Info returns the description of a modality, or nil for unknown
func Info(m types.Modality) *types.TherapyInfo {
	info, ok := therapies[m]
	if !ok {
		return nil
	}
	info.CorePrinciples = append([]string(nil), info.CorePrinciples...)
	info.BestFor = append([]string(nil), info.BestFor...)
	return &info
}

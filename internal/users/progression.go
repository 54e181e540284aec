package users

// ApplyXP adds the gained experience and applies the level-up rule:
// the level goes up by exactly one when the new experience total reaches
// the current threshold (level * 100), regardless of how far past the
// threshold the gain lands. A single application never skips levels.
func ApplyXP(level, experience, xpGain int) (newLevel, newExperience int) {
	newExperience = experience + xpGain
	if level < 1 {
		level = 1
	}
	newLevel = level
	if newExperience/(level*100) > 0 {
		newLevel = level + 1
	}
	return newLevel, newExperience
}

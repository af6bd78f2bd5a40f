package parser

import "strings"

// 模式片段
func group(name, patt string) string { return "(?<" + name + ">" + patt + ")" }
func float(name string) string { return group(name, `\d+(?:\.\d*)?`) }
func num(name string) string { return group(name, `\d+?`) }
func word(name string) string { return group(name, `[\w\s\-]+`) }
func words(name string) string { return group(name, `[\w\s\- ]+`) }
func mult(opts ...string) string { return group("multiplier_type", strings.Join(opts, "|")) }

// "New Game +" 也是合法的怪物名
func monster() string { return group("monster", `[\w\s\-+]+`) }

const resist = `(?: \((?<resist>\d+)% resisted\))?`

func enemySpell() string {
	return monster() + " " + group("spell_type", "casts|uses") + " " + words("skill")
}

type patternDef struct {
	name    string
	expr    string
	numeric []string
}

// patternTable 按顺序匹配, 第一个命中的模式生效
func patternTable() []patternDef {
	return []patternDef{
		// 行动
		{"PLAYER_BASIC", words("spell") + " " + mult("hits", "crits") + " (?!you)" + monster() + " for " + num("value") + " " + word("damage_type") + ` damage\.`, []string{"value"}},
		{"PLAYER_MISS", monster() + " " + mult("parries") + " your attack.", nil},
		{"PLAYER_ITEM", "You use " + words("item") + `\.`, nil},
		{"PLAYER_SKILL", "You cast " + words("spell") + `\.`, nil},
		{"PLAYER_DODGE", "You " + mult("evade", "parry") + " the attack from " + monster() + `\.`, nil},

		{"ENEMY_BASIC", monster() + " " + mult("hits", "crits") + " you for " + num("value") + " " + word("damage_type") + ` damage\.`, []string{"value"}},
		{"ENEMY_SKILL_ABSORB", enemySpell() + ", but is " + mult("absorb") + `ed\. You gain ` + word("mp"), nil},
		{"ENEMY_SKILL_MISS", enemySpell() + `\. You ` + mult("evade", "parry") + ` the attack\.`, nil},
		{"ENEMY_SKILL_SUCCESS", enemySpell() + ", and " + mult("hits", "crits") + " you for " + num("value") + " " + word("damage_type") + " damage" + resist + `\.?`, []string{"value", "resist"}},

		// 效果
		{"PLAYER_BUFF", "You gain the effect " + words("effect") + `\.`, nil},
		{"PLAYER_SPELL_DAMAGE", words("spell") + " " + mult("hits", "blasts") + " " + monster() + " for " + num("value") + "(?: " + word("damage_type") + ")? damage" + resist, []string{"value", "resist"}},
		{"RIDDLE_RESTORE", "Time Bonus: Recovered " + num("hp") + " HP, " + num("mp") + " MP and " + num("sp") + ` SP\.`, []string{"hp", "mp", "sp"}},
		{"EFFECT_RESTORE", words("effect") + " restores " + num("value") + " points of " + word("type") + `\.`, []string{"value"}},
		{"ITEM_RESTORE", "Recovered " + num("value") + " points of " + word("type") + `\.`, []string{"value"}},
		{"CURE_RESTORE", "You are healed for " + num("value") + ` Health Points\.`, []string{"value"}},

		{"SPIRIT_SHIELD", "Your spirit shield absorbs " + num("damage") + " points of damage from the attack into " + num("spirit_damage") + ` points of spirit damage\.`, []string{"damage", "spirit_damage"}},
		{"SPARK_TRIGGER", `Your Spark of Life restores you from the brink of defeat\.`, nil},
		{"DISPEL", "The effect " + words("effect") + ` was dispelled\.`, nil},
		{"COOLDOWN_EXPIRE", "Cooldown expired for " + words("spell"), nil},
		{"BUFF_EXPIRE", "The effect " + words("effect") + ` has expired\.`, nil},
		{"RESIST", monster() + ` resists your spell\.`, nil},
		{"DEBUFF", monster() + " gains the effect " + words("name") + `\.`, nil},
		{"DEBUFF_EXPIRE", "The effect " + words("effect") + " on " + monster() + ` has expired\.`, nil},

		// 信息
		{"ROUND_START", "Initializing " + group("battle_type", `[\w\s\d#]+`) + ` \(Round ` + num("current") + " / " + num("max") + `\) \.\.\.`, []string{"current", "max"}},
		{"ROUND_END", "You are Victorious!", nil},
		{"FLEE", `You have escaped from the battle\.`, nil},
		{"SPAWN", "Spawned Monster " + group("letter", "[A-Z]") + ": MID=" + num("mid") + ` \(` + monster() + `\) LV=` + num("level") + " HP=" + num("hp"), []string{"mid", "level", "hp"}},
		{"DEATH", monster() + ` has been defeated\.`, nil},
		{"RIDDLE_MASTER", "The Riddlemaster listens.*", nil},

		{"GEM", monster() + " drops a " + words("type") + " powerup!", nil},
		{"CREDITS", "You gain " + num("value") + " Credits!", []string{"value"}},
		{"DROP", monster() + ` dropped \[` + group("item", ".*") + `\]`, nil},
		{"PROFICIENCY", "You gain " + float("value") + " points of " + words("type") + `\.`, []string{"value"}},
		{"EXPERIENCE", "You gain " + num("value") + " EXP!", []string{"value"}},
		{"AUTO_SALVAGE", "A traveling salesmoogle salvages it into " + num("value") + `x \[` + words("item") + `\]`, []string{"value"}},
		{"AUTO_SELL", `A traveling salesmoogle gives you \[` + num("value") + ` Credits\] for it\.`, []string{"value"}},
		{"CLEAR_BONUS", `Battle Clear Bonus! \[` + words("item") + `\]`, nil},
		{"TOKEN_BONUS", `Arena Token Bonus! \[` + words("item") + `\]`, nil},
		{"EVENT_ITEM", `You found a \[` + words("item") + `\]`, nil},

		{"MB_USAGE", "Used: " + group("value", ".*"), nil},
	}
}

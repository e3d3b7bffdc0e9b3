package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"plant-downtime/internal/downtime/domain"
)

// Plant describes the plant layout and role names used by the bot.
type Plant struct {
	Registry      domain.Registry `yaml:",inline"`
	AdminRole     string          `yaml:"admin_role"`
	EmployeeRole  string          `yaml:"employee_role"`
	TopNReasons   int             `yaml:"top_n_reasons"`
	DowntimeSheet string          `yaml:"downtime_sheet"`
	GroupsSheet   string          `yaml:"groups_sheet"`
	RolesSheet    string          `yaml:"roles_sheet"`
}

// DefaultPlant returns the built-in plant layout.
func DefaultPlant() Plant {
	return Plant{
		Registry: domain.Registry{
			Sites: []domain.Site{
				{Key: "omet", Name: "ОМЕТ"},
				{Key: "gambini2", Name: "Гамбини-2"},
				{Key: "gambini3", Name: "Гамбини-3"},
				{Key: "mts2", Name: "МТС-2"},
				{Key: "mts4", Name: "МТС-4"},
			},
			Lines: map[string][]domain.Line{
				"omet": {
					{Key: "omet1", Name: "ОМЕТ1"}, {Key: "omet2", Name: "ОМЕТ2"}, {Key: "omet3", Name: "ОМЕТ3"},
					{Key: "omet4", Name: "ОМЕТ4"}, {Key: "omet5", Name: "ОМЕТ5"}, {Key: "sdf", Name: "СДФ"},
				},
				"gambini2": {
					{Key: "raskat", Name: "раскат"}, {Key: "tisnenie", Name: "тиснение"}, {Key: "namotchik", Name: "намотчик"},
					{Key: "bunker", Name: "бункер"}, {Key: "rezka", Name: "резка"}, {Key: "gilza", Name: "гильза"},
					{Key: "uno", Name: "уно"}, {Key: "fbs", Name: "фбс"}, {Key: "printer", Name: "принтер"},
				},
				"gambini3": {
					{Key: "raskat", Name: "раскат"}, {Key: "tisnenie", Name: "тиснение"}, {Key: "namotchik", Name: "намотчик"},
					{Key: "ambalazh", Name: "амбалаж"}, {Key: "bunker", Name: "бункер"}, {Key: "rezka", Name: "резка"},
					{Key: "gilza", Name: "гильза"}, {Key: "uno", Name: "уно"}, {Key: "fbs", Name: "фбс"},
					{Key: "infinity", Name: "инфинити"}, {Key: "printer", Name: "принтер"},
				},
				"mts2": {
					{Key: "raskat", Name: "Раскат"}, {Key: "tisnenie", Name: "Тиснение"}, {Key: "folder", Name: "фолдер"},
					{Key: "ambalazh", Name: "амбалаж"}, {Key: "rezka", Name: "резка"}, {Key: "tekna", Name: "текна"},
					{Key: "keyspaker", Name: "кейспакер"}, {Key: "printer", Name: "принтер"},
				},
				"mts4": {
					{Key: "raskat", Name: "Раскат"}, {Key: "tisnenie", Name: "Тиснение"}, {Key: "folder", Name: "фолдер"},
					{Key: "ambalazh", Name: "амбалаж"}, {Key: "rezka", Name: "резка"}, {Key: "keyspaker", Name: "кейспакер"},
					{Key: "printer", Name: "принтер"},
				},
			},
			Reasons: []domain.Reason{
				{Key: "perevod", Name: "перевод"}, {Key: "mehanika", Name: "механика"}, {Key: "kip", Name: "кип"},
				{Key: "obryv", Name: "обрыв"}, {Key: "net_osnovy", Name: "нет основы"}, {Key: "net_operatora", Name: "нет оператора"},
				{Key: "obed", Name: "обед"}, {Key: "zamena", Name: "замена"}, {Key: "net_plana", Name: "нет плана"},
				{Key: "phd", Name: "пхд"}, {Key: "net_vozduha", Name: "нет воздуха"},
			},
		},
		AdminRole:     "Администратор",
		EmployeeRole:  "Сотрудник",
		TopNReasons:   3,
		DowntimeSheet: "Простои",
		GroupsSheet:   "Группы",
		RolesSheet:    "Пользователи_Роли",
	}
}

// LoadPlant loads the plant layout from a YAML file, falling back to
// DefaultPlant for every field the file leaves empty.
func LoadPlant(path string) (Plant, error) {
	plant := DefaultPlant()
	if path == "" {
		return plant, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return plant, err
	}
	var override Plant
	if err := yaml.Unmarshal(data, &override); err != nil {
		return plant, err
	}
	plant = mergePlant(plant, override)
	if err := plant.Validate(); err != nil {
		return plant, err
	}
	return plant, nil
}

// Validate checks the layout is usable.
func (p Plant) Validate() error {
	if len(p.Registry.Sites) == 0 {
		return errors.New("plant config: no sites")
	}
	if p.AdminRole == "" {
		return errors.New("plant config: empty admin role")
	}
	if p.TopNReasons <= 0 {
		return errors.New("plant config: top_n_reasons must be positive")
	}
	seen := make(map[string]struct{}, len(p.Registry.Sites))
	for _, site := range p.Registry.Sites {
		if site.Key == "" || site.Name == "" {
			return errors.New("plant config: site key and name required")
		}
		if _, ok := seen[site.Key]; ok {
			return errors.New("plant config: duplicate site " + site.Key)
		}
		seen[site.Key] = struct{}{}
	}
	return nil
}

// Roles returns the assignable role names, admin first.
func (p Plant) Roles() []string {
	roles := []string{p.AdminRole}
	if p.EmployeeRole != "" {
		roles = append(roles, p.EmployeeRole)
	}
	return roles
}

func mergePlant(base, override Plant) Plant {
	if len(override.Registry.Sites) > 0 {
		base.Registry.Sites = override.Registry.Sites
	}
	if override.Registry.Lines != nil {
		base.Registry.Lines = override.Registry.Lines
	}
	if len(override.Registry.Reasons) > 0 {
		base.Registry.Reasons = override.Registry.Reasons
	}
	if override.AdminRole != "" {
		base.AdminRole = override.AdminRole
	}
	if override.EmployeeRole != "" {
		base.EmployeeRole = override.EmployeeRole
	}
	if override.TopNReasons != 0 {
		base.TopNReasons = override.TopNReasons
	}
	if override.DowntimeSheet != "" {
		base.DowntimeSheet = override.DowntimeSheet
	}
	if override.GroupsSheet != "" {
		base.GroupsSheet = override.GroupsSheet
	}
	if override.RolesSheet != "" {
		base.RolesSheet = override.RolesSheet
	}
	return base
}

package core

import "strings"

// CategorySet is a user's customized list of categories and subcategories.
type CategorySet struct {
	ExpenseCategories []string            `json:"expenseCategories"`
	IncomeCategories  []string            `json:"incomeCategories"`
	Subcategories     map[string][]string `json:"subcategories"`
}

// DefaultCategorySet returns the categories every user starts with.
func DefaultCategorySet() CategorySet {
	return CategorySet{
		ExpenseCategories: []string{
			"Alimentación", "Transporte", "Vivienda", "Salud", "Entretenimiento",
			"Educación", "Ropa", "Servicios", "Otros gastos",
		},
		IncomeCategories: []string{
			"Salario", "Freelance", "Inversiones", "Ventas", "Regalos", "Otros ingresos",
		},
		Subcategories: map[string][]string{
			"Alimentación":    {"Supermercado", "Restaurantes", "Comida rápida", "Delivery"},
			"Transporte":      {"Combustible", "Transporte público", "Taxi/Uber", "Mantenimiento vehículo"},
			"Vivienda":        {"Alquiler", "Servicios básicos", "Internet", "Mantenimiento"},
			"Salud":           {"Medicamentos", "Consultas médicas", "Seguro médico", "Emergencias"},
			"Entretenimiento": {"Cine", "Streaming", "Juegos", "Deportes", "Salidas"},
			"Educación":       {"Cursos", "Libros", "Material escolar", "Certificaciones"},
			"Ropa":            {"Ropa casual", "Ropa formal", "Calzado", "Accesorios"},
			"Servicios":       {"Telefonía", "Seguros", "Bancarios", "Profesionales"},
			"Otros gastos":    {"Regalos", "Donaciones", "Varios"},
			"Salario":         {"Sueldo base", "Bonos", "Horas extra", "Aguinaldo"},
			"Freelance":       {"Proyectos", "Consultoría", "Servicios"},
			"Inversiones":     {"Dividendos", "Intereses", "Ganancias capital"},
			"Ventas":          {"Productos", "Servicios", "Comisiones"},
			"Regalos":         {"Dinero recibido", "Obsequios"},
			"Otros ingresos":  {"Reembolsos", "Varios"},
		},
	}
}

// Clone returns a deep copy. Lists are never nil, so they encode as [].
func (c CategorySet) Clone() CategorySet {
	out := CategorySet{
		ExpenseCategories: append([]string{}, c.ExpenseCategories...),
		IncomeCategories:  append([]string{}, c.IncomeCategories...),
		Subcategories:     make(map[string][]string, len(c.Subcategories)),
	}
	for k, v := range c.Subcategories {
		out.Subcategories[k] = append([]string{}, v...)
	}
	return out
}

// List returns the categories of the given type.
func (c CategorySet) List(t TransactionType) []string {
	if t == TypeIngreso {
		return c.IncomeCategories
	}
	return c.ExpenseCategories
}

// All returns expense categories followed by income categories.
func (c CategorySet) All() []string {
	out := make([]string, 0, len(c.ExpenseCategories)+len(c.IncomeCategories))
	out = append(out, c.ExpenseCategories...)
	return append(out, c.IncomeCategories...)
}

// AddCategory appends name to the list of type t. It reports false when the
// trimmed name is empty or already present.
func (c *CategorySet) AddCategory(t TransactionType, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || contains(c.List(t), name) {
		return false
	}
	if t == TypeIngreso {
		c.IncomeCategories = append(c.IncomeCategories, name)
	} else {
		c.ExpenseCategories = append(c.ExpenseCategories, name)
	}
	if c.Subcategories == nil {
		c.Subcategories = map[string][]string{}
	}
	if _, ok := c.Subcategories[name]; !ok {
		c.Subcategories[name] = []string{}
	}
	return true
}

// RemoveCategory drops name and its subcategories.
func (c *CategorySet) RemoveCategory(t TransactionType, name string) bool {
	list := c.List(t)
	idx := indexOf(list, name)
	if idx < 0 {
		return false
	}
	list = append(list[:idx:idx], list[idx+1:]...)
	if t == TypeIngreso {
		c.IncomeCategories = list
	} else {
		c.ExpenseCategories = list
	}
	delete(c.Subcategories, name)
	return true
}

// AddSubcategory appends sub under category.
func (c *CategorySet) AddSubcategory(category, sub string) bool {
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return false
	}
	if c.Subcategories == nil {
		c.Subcategories = map[string][]string{}
	}
	if contains(c.Subcategories[category], sub) {
		return false
	}
	c.Subcategories[category] = append(c.Subcategories[category], sub)
	return true
}

// RemoveSubcategory drops sub from category.
func (c *CategorySet) RemoveSubcategory(category, sub string) bool {
	list := c.Subcategories[category]
	idx := indexOf(list, sub)
	if idx < 0 {
		return false
	}
	c.Subcategories[category] = append(list[:idx:idx], list[idx+1:]...)
	return true
}

func contains(list []string, v string) bool {
	return indexOf(list, v) >= 0
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

package graphql

import (
	"fmt"

	"github.com/dd0wney/posh-debugger/pkg/plan"
	"github.com/graphql-go/graphql"
)

// elementView pairs an element with the snapshot it was read from so that
// child references resolve against the same graph for the whole query.
type elementView struct {
	graph   *plan.Graph
	element plan.Element
}

// GenerateSchema builds the collaborator schema over a plan registry.
// Queries read the published snapshot; clearDirty is the only mutation.
func GenerateSchema(reg *plan.Registry) (graphql.Schema, error) {
	categoryEnum := createCategoryEnum()
	senseType := createSenseType()
	elementType := createElementType(categoryEnum, senseType)

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"health": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return "ok", nil
				},
			},
			"generation": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return int(reg.Current().Generation()), nil
				},
			},
			"element": &graphql.Field{
				Type: elementType,
				Args: graphql.FieldConfigArgument{
					"category": &graphql.ArgumentConfig{Type: graphql.NewNonNull(categoryEnum)},
					"name":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: elementResolver(reg),
			},
			"elements": &graphql.Field{
				Type: graphql.NewList(elementType),
				Args: graphql.FieldConfigArgument{
					"category": &graphql.ArgumentConfig{Type: graphql.NewNonNull(categoryEnum)},
				},
				Resolve: elementsResolver(reg),
			},
			"dirty": &graphql.Field{
				Type:    graphql.NewList(elementType),
				Resolve: dirtyResolver(reg),
			},
		},
	})

	mutationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"clearDirty": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Boolean),
				Description: "Clears one element's dirty flag and reports whether it was set",
				Args: graphql.FieldConfigArgument{
					"category": &graphql.ArgumentConfig{Type: graphql.NewNonNull(categoryEnum)},
					"name":     &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: clearDirtyResolver(reg),
			},
			"clearAllDirty": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "Clears every dirty flag and returns how many were set",
				Resolve:     clearAllDirtyResolver(reg),
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to create schema: %w", err)
	}

	return schema, nil
}

func createCategoryEnum() *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, c := range plan.Categories {
		values[c.String()] = &graphql.EnumValueConfig{Value: c}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:   "Category",
		Values: values,
	})
}

func createSenseType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Sense",
		Fields: graphql.Fields{
			"name": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return p.Source.(plan.Sense).Name, nil
				},
			},
			"comparator": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return p.Source.(plan.Sense).Comparator.Code(), nil
				},
			},
			"value": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return p.Source.(plan.Sense).Value, nil
				},
			},
		},
	})
}

// createElementType builds the single Element object shared by all six
// categories. Fields that do not apply to a category resolve to null.
func createElementType(categoryEnum *graphql.Enum, senseType *graphql.Object) *graphql.Object {
	var elementType *graphql.Object
	elementType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Element",
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"name": &graphql.Field{
					Type: graphql.NewNonNull(graphql.String),
					Resolve: func(p graphql.ResolveParams) (any, error) {
						return p.Source.(elementView).element.Name(), nil
					},
				},
				"category": &graphql.Field{
					Type: graphql.NewNonNull(categoryEnum),
					Resolve: func(p graphql.ResolveParams) (any, error) {
						return p.Source.(elementView).element.Category(), nil
					},
				},
				"dirty": &graphql.Field{
					Type: graphql.NewNonNull(graphql.Boolean),
					Resolve: func(p graphql.ResolveParams) (any, error) {
						return p.Source.(elementView).element.Dirty(), nil
					},
				},
				"guard": &graphql.Field{
					Type:        graphql.NewList(senseType),
					Description: "Guard, goal or enabling condition, whichever the category carries",
					Resolve: func(p graphql.ResolveParams) (any, error) {
						return guardOf(p.Source.(elementView).element), nil
					},
				},
				"triggers": &graphql.Field{
					Type: graphql.String,
					Resolve: func(p graphql.ResolveParams) (any, error) {
						switch e := p.Source.(elementView).element.(type) {
						case *plan.CompetenceElement:
							return e.Triggers, nil
						case *plan.DriveElement:
							return e.Triggers, nil
						}
						return nil, nil
					},
				},
				"triggered": &graphql.Field{
					Type: elementType,
					Resolve: func(p graphql.ResolveParams) (any, error) {
						v := p.Source.(elementView)
						var ref plan.Ref
						switch e := v.element.(type) {
						case *plan.CompetenceElement:
							ref = e.Triggered
						case *plan.DriveElement:
							ref = e.Triggered
						}
						return v.resolve(ref), nil
					},
				},
				"children": &graphql.Field{
					Type:        graphql.NewList(elementType),
					Description: "Pattern actions, competence elements or drive elements in document order",
					Resolve: func(p graphql.ResolveParams) (any, error) {
						v := p.Source.(elementView)
						return v.resolveAll(childrenOf(v.element)), nil
					},
				},
				"checkTime": &graphql.Field{
					Type: graphql.Float,
					Resolve: func(p graphql.ResolveParams) (any, error) {
						if de, ok := p.Source.(elementView).element.(*plan.DriveElement); ok {
							return de.CheckTime, nil
						}
						return nil, nil
					},
				},
			}
		}),
	})
	return elementType
}

func guardOf(e plan.Element) []plan.Sense {
	switch e := e.(type) {
	case *plan.CompetenceElement:
		return e.Guard
	case *plan.Competence:
		return e.Goal
	case *plan.DriveElement:
		return e.Guard
	case *plan.DriveCollection:
		return e.Enabling
	}
	return nil
}

func childrenOf(e plan.Element) []plan.Ref {
	switch e := e.(type) {
	case *plan.ActionPattern:
		return e.Actions
	case *plan.Competence:
		return e.Elements
	case *plan.DriveCollection:
		return e.Elements
	}
	return nil
}

// resolve returns nil rather than a typed nil so graphql renders null.
func (v elementView) resolve(ref plan.Ref) any {
	if ref.IsZero() {
		return nil
	}
	e, ok := v.graph.Resolve(ref)
	if !ok {
		return nil
	}
	return elementView{graph: v.graph, element: e}
}

func (v elementView) resolveAll(refs []plan.Ref) []elementView {
	out := make([]elementView, 0, len(refs))
	for _, e := range v.graph.ResolveAll(refs) {
		out = append(out, elementView{graph: v.graph, element: e})
	}
	return out
}

func viewsOf(g *plan.Graph, elements []plan.Element) []elementView {
	out := make([]elementView, len(elements))
	for i, e := range elements {
		out[i] = elementView{graph: g, element: e}
	}
	return out
}

func categoryArg(p graphql.ResolveParams) (plan.Category, error) {
	c, ok := p.Args["category"].(plan.Category)
	if !ok || !c.Valid() {
		return 0, fmt.Errorf("invalid category %v", p.Args["category"])
	}
	return c, nil
}

func elementResolver(reg *plan.Registry) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		c, err := categoryArg(p)
		if err != nil {
			return nil, err
		}
		name, _ := p.Args["name"].(string)

		g := reg.Current()
		e, ok := g.Find(c, name)
		if !ok {
			return nil, nil
		}
		return elementView{graph: g, element: e}, nil
	}
}

func elementsResolver(reg *plan.Registry) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		c, err := categoryArg(p)
		if err != nil {
			return nil, err
		}
		g := reg.Current()
		return viewsOf(g, g.All(c)), nil
	}
}

func dirtyResolver(reg *plan.Registry) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		g := reg.Current()
		return viewsOf(g, g.DirtyElements()), nil
	}
}

func clearDirtyResolver(reg *plan.Registry) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		c, err := categoryArg(p)
		if err != nil {
			return nil, err
		}
		name, _ := p.Args["name"].(string)

		e, ok := reg.Find(c, name)
		if !ok {
			return nil, fmt.Errorf("%s %q not found", c, name)
		}
		return e.ClearDirty(), nil
	}
}

func clearAllDirtyResolver(reg *plan.Registry) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		cleared := 0
		for _, e := range reg.Current().DirtyElements() {
			if e.ClearDirty() {
				cleared++
			}
		}
		return cleared, nil
	}
}

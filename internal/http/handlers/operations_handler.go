package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgops/internal/models"
	"orgops/internal/operations"
)

func ProcessGraph(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		g, err := env.Operations.ProcessGraph(c, orgID(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

func AddEdge(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in models.ActivityEdge
		if !bind(c, &in) {
			return
		}
		edge, err := env.Operations.AddEdge(c, actor(c), id, in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"edge": edge})
	}
}

func DeleteEdge(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		edgeID, ok := idParam(c, "edgeId")
		if !ok {
			return
		}
		if err := env.Operations.DeleteEdge(c, actor(c), id, edgeID); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// SaveLayout stores the positions dragged on the process canvas.
func SaveLayout(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in struct {
			Positions []operations.Position `json:"positions"`
		}
		if !bind(c, &in) {
			return
		}
		if err := env.Operations.SaveLayout(c, actor(c), id, in.Positions); err != nil {
			fail(c, err)
			return
		}
		env.invalidate(c, "activities")
		c.JSON(http.StatusOK, gin.H{"saved": len(in.Positions)})
	}
}

func GoalTree(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		tree, err := env.Operations.GoalTree(c, orgID(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"goals": tree})
	}
}

// UpdateGoalProgress checks in a key result's current value.
func UpdateGoalProgress(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in operations.ProgressUpdate
		if !bind(c, &in) {
			return
		}
		g, err := env.Operations.UpdateProgress(c, actor(c), id, in)
		if err != nil {
			fail(c, err)
			return
		}
		env.invalidate(c, "goals")
		c.JSON(http.StatusOK, gin.H{"goal": g})
	}
}

func Dashboard(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		d, err := env.Operations.Dashboard(c, orgID(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"orgops/internal/canvas"
	"orgops/internal/models"
)

func AddBlock(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		var in models.CanvasBlock
		if !bind(c, &in) {
			return
		}
		b, err := env.Canvas.AddBlock(c, actor(c), id, in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"block": b})
	}
}

func UpdateBlock(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		blockID, ok := idParam(c, "blockId")
		if !ok {
			return
		}
		var in struct {
			Notes string `json:"notes"`
		}
		if !bind(c, &in) {
			return
		}
		b, err := env.Canvas.UpdateNotes(c, actor(c), id, blockID, in.Notes)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"block": b})
	}
}

func DeleteBlock(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		blockID, ok := idParam(c, "blockId")
		if !ok {
			return
		}
		if err := env.Canvas.DeleteBlock(c, actor(c), id, blockID); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func AddReference(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		blockID, ok := idParam(c, "blockId")
		if !ok {
			return
		}
		var in models.BlockReference
		if !bind(c, &in) {
			return
		}
		ref, err := env.Canvas.AddReference(c, actor(c), id, blockID, in)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"reference": ref})
	}
}

func DeleteReference(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		blockID, ok := idParam(c, "blockId")
		if !ok {
			return
		}
		refID, ok := idParam(c, "refId")
		if !ok {
			return
		}
		if err := env.Canvas.DeleteReference(c, actor(c), id, blockID, refID); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// Board returns the canvas with every reference resolved to its record.
func Board(env *Env) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		b, err := env.Canvas.Board(c, orgID(c), id)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, b)
	}
}

func BlockKinds() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"kinds": canvas.Kinds()})
	}
}

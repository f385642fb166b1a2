package api

import (
	"net/http"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"
	"github.com/schilling3003/Perplexica/internal/api/middleware"
	"github.com/schilling3003/Perplexica/internal/ingestion"
	"github.com/schilling3003/Perplexica/internal/registry"
)

func RegisterRoutes(container *restful.Container, handler *Handler) {
	ws := new(restful.WebService)

	ws.
		Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.
		Route(ws.GET("health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	ws.
		Route(ws.POST("/search").
			To(handler.Search).
			Doc("Run a search and return the complete answer").
			Metadata(restfulspec.KeyOpenAPITags, []string{"search"}).
			Reads(SearchRequest{}).
			Writes(SearchResponse{}).
			Returns(200, "OK", SearchResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(404, "No Information Found", middleware.ErrorResponse{}).
			Returns(500, "Internal Server Error", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/search/stream").
			To(handler.SearchStream).
			Doc("Run a search and stream events as Server-Sent Events").
			Metadata(restfulspec.KeyOpenAPITags, []string{"search"}).
			Produces(restful.MIME_JSON, "text/event-stream").
			Reads(SearchRequest{}).
			Returns(200, "OK", nil).
			Returns(400, "Bad Request", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/search/restaurant").
			To(handler.EvaluateRestaurant).
			Doc("Evaluate a restaurant").
			Metadata(restfulspec.KeyOpenAPITags, []string{"search"}).
			Reads(RestaurantRequest{}).
			Writes(RestaurantResponse{}).
			Returns(200, "OK", RestaurantResponse{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(404, "No Information Found", RestaurantResponse{}).
			Returns(500, "Internal Server Error", RestaurantResponse{}))

	ws.
		Route(ws.GET("/focus-modes").
			To(handler.FocusModes).
			Doc("List focus modes").
			Metadata(restfulspec.KeyOpenAPITags, []string{"search"}).
			Writes([]registry.ModeInfo{}).
			Returns(200, "OK", []registry.ModeInfo{}))

	ws.
		Route(ws.GET("/chats").
			To(handler.ListChats).
			Doc("List chats, newest first").
			Metadata(restfulspec.KeyOpenAPITags, []string{"chats"}).
			Writes(ChatsResponse{}).
			Returns(200, "OK", ChatsResponse{}).
			Returns(503, "Service Unavailable", middleware.ErrorResponse{}))

	ws.
		Route(ws.GET("/chats/{chat_id}").
			To(handler.GetChat).
			Doc("Get a chat and its messages").
			Metadata(restfulspec.KeyOpenAPITags, []string{"chats"}).
			Param(ws.PathParameter("chat_id", "Chat id").DataType("string")).
			Writes(ChatResponse{}).
			Returns(200, "OK", ChatResponse{}).
			Returns(404, "Chat Not Found", middleware.ErrorResponse{}))

	ws.
		Route(ws.DELETE("/chats/{chat_id}").
			To(handler.DeleteChat).
			Doc("Delete a chat and its messages").
			Metadata(restfulspec.KeyOpenAPITags, []string{"chats"}).
			Param(ws.PathParameter("chat_id", "Chat id").DataType("string")).
			Returns(204, "No Content", nil).
			Returns(404, "Chat Not Found", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/uploads").
			To(handler.Upload).
			Doc("Upload a .txt, .md or .html file into the file store").
			Metadata(restfulspec.KeyOpenAPITags, []string{"uploads"}).
			Consumes("multipart/form-data").
			Param(ws.FormParameter("file", "File to ingest").DataType("file")).
			Writes(ingestion.Result{}).
			Returns(200, "OK", ingestion.Result{}).
			Returns(400, "Bad Request", middleware.ErrorResponse{}).
			Returns(503, "Service Unavailable", middleware.ErrorResponse{}))

	ws.
		Route(ws.POST("/admin/cache/clear").
			To(handler.ClearCache).
			Doc("Clear the search result cache").
			Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
			Writes(CacheClearResponse{}).
			Returns(200, "OK", CacheClearResponse{}))

	container.Add(ws)
}

// RegisterOpenAPI serves the OpenAPI document for every web service added so
// far. Call it after RegisterRoutes.
func RegisterOpenAPI(container *restful.Container, version string) {
	config := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/api/v1/openapi.json",
		PostBuildSwaggerObjectHandler: func(swo *spec.Swagger) {
			enrichSwaggerObject(swo, version)
		},
	}
	container.Add(restfulspec.NewOpenAPIService(config))
}

func enrichSwaggerObject(swo *spec.Swagger, version string) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "Perplexica API",
			Description: "AI-powered search assistant with focus modes",
			Version:     version,
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "health", Description: "Health checks"}},
		{TagProps: spec.TagProps{Name: "search", Description: "Search and restaurant evaluation"}},
		{TagProps: spec.TagProps{Name: "chats", Description: "Chat history"}},
		{TagProps: spec.TagProps{Name: "uploads", Description: "File store uploads"}},
		{TagProps: spec.TagProps{Name: "admin", Description: "Maintenance operations"}},
	}
}

// NewContainer builds the restful container with middleware, routes and the
// OpenAPI document. extra is mounted as plain http handlers (e.g. /ws).
func NewContainer(handler *Handler, version string, extra map[string]http.Handler) *restful.Container {
	container := restful.NewContainer()
	container.Filter(middleware.Logger)
	container.Filter(middleware.RecoverPanic)
	RegisterRoutes(container, handler)
	RegisterOpenAPI(container, version)

	for pattern, h := range extra {
		container.Handle(pattern, h)
	}
	return container
}


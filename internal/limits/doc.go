// Package limits holds the declarative upload policy: the constraint
// specification deciding which uploads a field accepts, and the hosting
// limits deciding how accepted uploads are transformed.
//
// Policy values that may be given once or per file type are decoded into
// Keyed values when the policy is loaded. Resolve picks the value for a file
// using a fixed precedence: gif-still or gif-animated, then the exact MIME
// type, then the motion type.
//
// Policies are written in YAML:
//
//	fields:
//	  upload:
//	    collection: uploads
//	    validation:
//	      file_type: [image, video]
//	      max_size: {image: 10485760, video: 104857600}
//	      widest_aspect_ratio: "16:9"
//	    hosting_limits:
//	      conversion:
//	        - [image, image/jpeg]
//	        - [image/png, image/png, 1048576]
//	        - [video, video/mp4]
//	      max_dimensions: {image: [[1920, 1200], [1080, 1920]]}
//	      thumbnail: {axis: width, size: 600, directory: thumbnails}
//
// A conversion entry is [from, to..., threshold?]. A mapping anywhere a
// Keyed value is expected is read as per-type values.
package limits
